// Package filestore keeps one durable file per user for the session record
// and one append-only file per user and log stream. Writes for different
// users touch different files and never share a lock.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/msomdec/diabot/internal/domain"
)

const (
	sessionsDir = "sessions"
	logsDir     = "logs"
	recordExt   = ".rec"
	logExt      = ".log"
	dirPerm     = 0o700
	filePerm    = 0o600
)

// Store is the file-based domain.Storage backend.
type Store struct {
	root    string
	records *Records
	logs    *Logs
}

// New prepares a store rooted at dir. Directories are created by Migrate.
func New(dir string) *Store {
	return &Store{
		root:    dir,
		records: &Records{dir: filepath.Join(dir, sessionsDir)},
		logs:    &Logs{dir: filepath.Join(dir, logsDir)},
	}
}

func (s *Store) Records() domain.RecordStore { return s.records }
func (s *Store) Logs() domain.LogStore       { return s.logs }

// Migrate creates the directory layout. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, dir := range []string{s.root, s.records.dir, s.logs.dir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

// Root returns the storage directory.
func (s *Store) Root() string { return s.root }

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
