package filestore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/msomdec/diabot/internal/domain"
)

// tailWindow bounds how much of a log is read to find its last line.
const tailWindow = 64 << 10

// Logs implements domain.LogStore. Each line is "<eventID>\t<base64 payload>".
type Logs struct {
	dir string
}

func (l *Logs) path(userID int64, stream domain.Stream) string {
	return filepath.Join(l.dir, userKey(userID), string(stream)+logExt)
}

func (l *Logs) Append(ctx context.Context, userID int64, stream domain.Stream, eventID int64, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := l.path(userID, stream)
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	last, terminated, err := lastLine(f)
	if err != nil {
		return fmt.Errorf("read log tail: %w", err)
	}
	if eventID != 0 && last != nil {
		if id, _, ok := parseLine(last); ok && id == eventID {
			slog.Debug("skipping duplicate log entry", "user_id", userID, "stream", stream, "event_id", eventID)
			return nil
		}
	}

	var buf bytes.Buffer
	if !terminated {
		// A previous write was torn by a crash; close the fragment so it is
		// skipped on read instead of merging with this entry.
		buf.WriteByte('\n')
	}
	buf.WriteString(strconv.FormatInt(eventID, 10))
	buf.WriteByte('\t')
	buf.WriteString(base64.StdEncoding.EncodeToString(payload))
	buf.WriteByte('\n')

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}
	return nil
}

func (l *Logs) Tail(ctx context.Context, userID int64, stream domain.Stream, limit int) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(l.path(userID, stream))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var out [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), tailWindow)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		_, payload, ok := parseLine(line)
		if !ok {
			slog.Warn("skipping malformed log line", "user_id", userID, "stream", stream)
			continue
		}
		out = append(out, payload)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	return out, nil
}

func parseLine(line []byte) (int64, []byte, bool) {
	idPart, encoded, found := bytes.Cut(line, []byte{'\t'})
	if !found {
		return 0, nil, false
	}
	id, err := strconv.ParseInt(string(idPart), 10, 64)
	if err != nil {
		return 0, nil, false
	}
	payload, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return 0, nil, false
	}
	return id, payload, true
}

// lastLine returns the last complete line of f and whether f ends with a
// newline. An empty file reports terminated=true and a nil line.
func lastLine(f *os.File) (line []byte, terminated bool, err error) {
	info, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	size := info.Size()
	if size == 0 {
		return nil, true, nil
	}

	n := min(size, tailWindow)
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, size-n); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	terminated = buf[len(buf)-1] == '\n'
	if !terminated {
		return nil, false, nil
	}
	buf = buf[:len(buf)-1]
	if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
		buf = buf[i+1:]
	}
	return buf, true, nil
}
