package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/msomdec/diabot/internal/domain"
)

// LogRepository implements domain.LogStore on the log_entries table.
type LogRepository struct {
	db *sql.DB
}

// NewLogRepository creates a new SQLite-backed LogRepository.
func NewLogRepository(db *DB) *LogRepository {
	return &LogRepository{db: db.SqlDB}
}

// Append inserts an entry. A non-zero eventID already present in the stream
// is ignored through the unique index; zero is stored as NULL so unknown
// delivery ids never collide.
func (r *LogRepository) Append(ctx context.Context, userID int64, stream domain.Stream, eventID int64, payload []byte) error {
	var event sql.NullInt64
	if eventID != 0 {
		event = sql.NullInt64{Int64: eventID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO log_entries (user_id, stream, event_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, stream, event_id) DO NOTHING`,
		userID, string(stream), event, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

func (r *LogRepository) Tail(ctx context.Context, userID int64, stream domain.Stream, limit int) ([][]byte, error) {
	query := `SELECT payload FROM log_entries WHERE user_id = ? AND stream = ? ORDER BY id DESC`
	args := []any{userID, string(stream)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		out = append(out, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest first from the query; callers expect chronological order.
	slices.Reverse(out)
	return out, nil
}
