package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/msomdec/diabot/internal/domain"
)

// Records implements domain.RecordStore with one file per user.
type Records struct {
	dir string
}

func (r *Records) path(userID int64) string {
	return filepath.Join(r.dir, userKey(userID)+recordExt)
}

func (r *Records) Get(ctx context.Context, userID int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	return data, nil
}

// Put replaces the user's record atomically: the bytes are written to a
// temporary file in the same directory, synced, then renamed over the old
// record, so readers see either the old or the new record and never a torn write.
func (r *Records) Put(ctx context.Context, userID int64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, userKey(userID)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("chmod temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, r.path(userID)); err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	committed = true
	return nil
}
