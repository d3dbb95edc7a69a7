package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/goccy/go-json"
)

// Language is the user's interface language.
type Language string

const (
	LanguageRussian Language = "ru"
	LanguageKazakh  Language = "kk"

	DefaultLanguage = LanguageRussian
)

// Languages lists the supported languages in menu order.
var Languages = []Language{LanguageRussian, LanguageKazakh}

func (l Language) Valid() bool {
	return l == LanguageRussian || l == LanguageKazakh
}

// Session is the durable per-user conversation state.
type Session struct {
	UserID       int64
	Language     Language
	Phase        Phase
	Scratch      map[string]string // Short-lived values bridging two consecutive events
	LastUpdateID int64             // Highest committed transport update id
	// Ids of the most recently committed updates, oldest first, at most
	// MaxRecentUpdates. A redelivered update is recognized by its id here.
	RecentUpdates []int64
	UpdatedAt     time.Time
}

// MaxRecentUpdates bounds Session.RecentUpdates.
const MaxRecentUpdates = 16

// NewSession returns the default session for a user that has no stored record.
func NewSession(userID int64) *Session {
	return &Session{
		UserID:   userID,
		Language: DefaultLanguage,
		Phase:    PhaseTopMenu,
		Scratch:  map[string]string{},
	}
}

// SetPhase moves the session to p. Scratch is dropped when p belongs to a
// different module than the current phase, so an abandoned flow never leaks
// its selections into another module.
func (s *Session) SetPhase(p Phase) {
	from, _ := OwnerOf(s.Phase)
	to, _ := OwnerOf(p)
	if from != to {
		s.ClearScratch()
	}
	s.Phase = p
}

func (s *Session) ScratchValue(key string) (string, bool) {
	v, ok := s.Scratch[key]
	return v, ok
}

func (s *Session) SetScratch(key, value string) {
	if s.Scratch == nil {
		s.Scratch = map[string]string{}
	}
	s.Scratch[key] = value
}

func (s *Session) ClearScratch() {
	s.Scratch = map[string]string{}
}

// SeenUpdate reports whether the update with this id was committed recently.
// Id 0 (unknown) is never seen.
func (s *Session) SeenUpdate(id int64) bool {
	return id != 0 && slices.Contains(s.RecentUpdates, id)
}

// RememberUpdate records a committed update id, dropping the oldest once
// more than MaxRecentUpdates are kept. Ids may arrive out of order.
func (s *Session) RememberUpdate(id int64) {
	if id == 0 || s.SeenUpdate(id) {
		return
	}
	s.RecentUpdates = append(s.RecentUpdates, id)
	if n := len(s.RecentUpdates); n > MaxRecentUpdates {
		s.RecentUpdates = slices.Clone(s.RecentUpdates[n-MaxRecentUpdates:])
	}
	s.LastUpdateID = max(s.LastUpdateID, id)
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.RecentUpdates = slices.Clone(s.RecentUpdates)
	c.Scratch = maps.Clone(s.Scratch)
	if c.Scratch == nil {
		c.Scratch = map[string]string{}
	}
	return &c
}

// SameState reports whether two sessions hold the same conversation state.
// Bookkeeping fields (LastUpdateID, RecentUpdates, UpdatedAt) are ignored.
func (s *Session) SameState(o *Session) bool {
	if s.UserID != o.UserID || s.Language != o.Language || s.Phase != o.Phase {
		return false
	}
	return maps.Equal(s.Scratch, o.Scratch)
}

const sessionFormatVersion = 1

type sessionRecord struct {
	Version       int               `json:"v"`
	UserID        int64             `json:"user_id"`
	Language      Language          `json:"language"`
	Phase         Phase             `json:"phase"`
	Scratch       map[string]string `json:"scratch,omitempty"`
	LastUpdateID  int64             `json:"last_update_id,omitempty"`
	RecentUpdates []int64           `json:"recent_updates,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// MarshalSession serializes a session into its versioned storage form.
func MarshalSession(s *Session) ([]byte, error) {
	return json.Marshal(sessionRecord{
		Version:       sessionFormatVersion,
		UserID:        s.UserID,
		Language:      s.Language,
		Phase:         s.Phase,
		Scratch:       s.Scratch,
		LastUpdateID:  s.LastUpdateID,
		RecentUpdates: s.RecentUpdates,
		UpdatedAt:     s.UpdatedAt,
	})
}

// UnmarshalSession decodes a record produced by MarshalSession. Any decoding
// problem, including a record that belongs to another user, is reported as
// ErrUndecodable.
func UnmarshalSession(data []byte, userID int64) (*Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if rec.Version != sessionFormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrUndecodable, rec.Version)
	}
	if rec.UserID != userID {
		return nil, fmt.Errorf("%w: record belongs to user %d", ErrUndecodable, rec.UserID)
	}
	if !rec.Language.Valid() {
		return nil, fmt.Errorf("%w: unknown language %q", ErrUndecodable, rec.Language)
	}

	s := &Session{
		UserID:        rec.UserID,
		Language:      rec.Language,
		Phase:         rec.Phase,
		Scratch:       rec.Scratch,
		LastUpdateID:  rec.LastUpdateID,
		RecentUpdates: rec.RecentUpdates,
		UpdatedAt:     rec.UpdatedAt,
	}
	if s.Phase == "" {
		s.Phase = PhaseTopMenu
	}
	if s.Scratch == nil {
		s.Scratch = map[string]string{}
	}
	return s, nil
}
