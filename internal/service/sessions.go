package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/msomdec/diabot/internal/domain"
)

// Cipher encrypts records before they reach storage.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SessionStore loads and saves encrypted sessions.
type SessionStore struct {
	records domain.RecordStore
	cipher  Cipher
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(records domain.RecordStore, cipher Cipher) *SessionStore {
	return &SessionStore{records: records, cipher: cipher}
}

// Load returns the user's session. A missing record yields a default
// session. A record that cannot be decrypted or decoded is replaced by a
// default session and logged as data loss; only storage I/O failures are
// returned as errors.
func (s *SessionStore) Load(ctx context.Context, userID int64) (*domain.Session, error) {
	data, err := s.records.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewSession(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session record: %w", err)
	}

	plain, err := s.cipher.Decrypt(data)
	if err != nil {
		slog.Warn("session record undecryptable, starting over", "user_id", userID, "error", err)
		return domain.NewSession(userID), nil
	}

	sess, err := domain.UnmarshalSession(plain, userID)
	if err != nil {
		slog.Warn("session record undecodable, starting over", "user_id", userID, "error", err)
		return domain.NewSession(userID), nil
	}
	return sess, nil
}

// Save encrypts and writes the session.
func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	plain, err := domain.MarshalSession(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}
	if err := s.records.Put(ctx, sess.UserID, sealed); err != nil {
		return fmt.Errorf("write session record: %w", err)
	}
	return nil
}
