package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/msomdec/diabot/internal/domain"
)

// Journal stores typed, encrypted entries in the per-user log streams.
type Journal struct {
	logs   domain.LogStore
	cipher Cipher
}

// NewJournal creates a new Journal.
func NewJournal(logs domain.LogStore, cipher Cipher) *Journal {
	return &Journal{logs: logs, cipher: cipher}
}

func (j *Journal) append(ctx context.Context, userID int64, stream domain.Stream, eventID int64, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s entry: %w", stream, err)
	}
	sealed, err := j.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt %s entry: %w", stream, err)
	}
	if err := j.logs.Append(ctx, userID, stream, eventID, sealed); err != nil {
		return fmt.Errorf("append %s entry: %w", stream, err)
	}
	return nil
}

// AppendMeasurement adds a glucose reading.
func (j *Journal) AppendMeasurement(ctx context.Context, userID int64, m domain.Measurement) error {
	return j.append(ctx, userID, domain.StreamGlucose, m.EventID, m)
}

// AppendFood adds a food entry.
func (j *Journal) AppendFood(ctx context.Context, userID int64, f domain.FoodEntry) error {
	return j.append(ctx, userID, domain.StreamFood, f.EventID, f)
}

// Measurements returns up to limit most recent readings, oldest first.
func (j *Journal) Measurements(ctx context.Context, userID int64, limit int) ([]domain.Measurement, error) {
	return tail[domain.Measurement](ctx, j, userID, domain.StreamGlucose, limit)
}

// FoodEntries returns up to limit most recent food entries, oldest first.
func (j *Journal) FoodEntries(ctx context.Context, userID int64, limit int) ([]domain.FoodEntry, error) {
	return tail[domain.FoodEntry](ctx, j, userID, domain.StreamFood, limit)
}

// Count returns the number of readable entries in a stream.
func (j *Journal) Count(ctx context.Context, userID int64, stream domain.Stream) (int, error) {
	raw, err := j.logs.Tail(ctx, userID, stream, 0)
	if err != nil {
		return 0, fmt.Errorf("read %s log: %w", stream, err)
	}
	return len(raw), nil
}

// tail decodes a stream. Entries that fail to decrypt or decode are skipped
// with a warning, the same way an unreadable session is replaced.
func tail[T any](ctx context.Context, j *Journal, userID int64, stream domain.Stream, limit int) ([]T, error) {
	raw, err := j.logs.Tail(ctx, userID, stream, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s log: %w", stream, err)
	}

	out := make([]T, 0, len(raw))
	for _, sealed := range raw {
		plain, err := j.cipher.Decrypt(sealed)
		if err != nil {
			slog.Warn("skipping undecryptable log entry", "user_id", userID, "stream", stream, "error", err)
			continue
		}
		var v T
		if err := json.Unmarshal(plain, &v); err != nil {
			slog.Warn("skipping undecodable log entry", "user_id", userID, "stream", stream, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
