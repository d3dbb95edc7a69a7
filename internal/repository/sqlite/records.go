package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/msomdec/diabot/internal/domain"
)

// RecordRepository implements domain.RecordStore with one row per user.
type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository creates a new SQLite-backed RecordRepository.
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db.SqlDB}
}

func (r *RecordRepository) Get(ctx context.Context, userID int64) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM user_records WHERE user_id = ?", userID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user record: %w", err)
	}
	return data, nil
}

func (r *RecordRepository) Put(ctx context.Context, userID int64, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_records (user_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		userID, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert user record: %w", err)
	}
	return nil
}
