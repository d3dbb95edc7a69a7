package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msomdec/diabot/internal/content"
	"github.com/msomdec/diabot/internal/domain"
	"github.com/msomdec/diabot/internal/locale"
	"github.com/msomdec/diabot/internal/repository/filestore"
	"github.com/msomdec/diabot/internal/service"
	"github.com/msomdec/diabot/internal/vault"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

// countingRecords counts writes reaching the underlying store.
type countingRecords struct {
	domain.RecordStore
	puts   atomic.Int64
	getErr error
}

func (c *countingRecords) Get(ctx context.Context, userID int64) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.RecordStore.Get(ctx, userID)
}

func (c *countingRecords) Put(ctx context.Context, userID int64, data []byte) error {
	c.puts.Add(1)
	return c.RecordStore.Put(ctx, userID, data)
}

type sentReply struct {
	chatID int64
	reply  domain.Reply
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentReply
	acks    []string
	sendErr error
}

func (f *fakeMessenger) Send(_ context.Context, chatID int64, reply domain.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentReply{chatID: chatID, reply: reply})
	return f.sendErr
}

func (f *fakeMessenger) AckCallback(_ context.Context, callbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, callbackID)
	return nil
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMessenger) last() domain.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return domain.Reply{}
	}
	return f.sent[len(f.sent)-1].reply
}

type harness struct {
	t         *testing.T
	store     *filestore.Store
	records   *countingRecords
	sessions  *service.SessionStore
	journal   *service.Journal
	catalog   *locale.Catalog
	library   *content.Library
	messenger *fakeMessenger
	router    *service.Router
}

func newHarness(t *testing.T, modules ...service.Module) *harness {
	t.Helper()

	store := filestore.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, store.Migrate(context.Background()))

	codec, err := vault.New(strings.Repeat("test-key-material-", 3))
	require.NoError(t, err)
	catalog, err := locale.Load()
	require.NoError(t, err)
	library, err := content.Load()
	require.NoError(t, err)

	if len(modules) == 0 {
		modules = service.DefaultModules()
	}

	h := &harness{
		t:         t,
		store:     store,
		records:   &countingRecords{RecordStore: store.Records()},
		catalog:   catalog,
		library:   library,
		messenger: &fakeMessenger{},
	}
	h.sessions = service.NewSessionStore(h.records, codec)
	h.journal = service.NewJournal(store.Logs(), codec)
	h.router = service.NewRouter(service.RouterDeps{
		Sessions:  h.sessions,
		Journal:   h.journal,
		Catalog:   catalog,
		Library:   library,
		Messenger: h.messenger,
		Now:       func() time.Time { return testNow },
	}, modules...)
	return h
}

func (h *harness) handle(in domain.Inbound) *service.Outcome {
	h.t.Helper()
	out, err := h.router.Handle(context.Background(), in)
	require.NoError(h.t, err)
	return out
}

func (h *harness) text(userID, updateID int64, body string) *service.Outcome {
	h.t.Helper()
	return h.handle(domain.Inbound{UserID: userID, ChatID: userID, UpdateID: updateID, Event: domain.Text{Body: body}})
}

func (h *harness) command(userID, updateID int64, name string) *service.Outcome {
	h.t.Helper()
	return h.handle(domain.Inbound{UserID: userID, ChatID: userID, UpdateID: updateID, Event: domain.Command{Name: name}})
}

func (h *harness) tap(userID, updateID int64, token string) *service.Outcome {
	h.t.Helper()
	cb, err := domain.ParseCallback(token)
	require.NoError(h.t, err)
	return h.handle(domain.Inbound{UserID: userID, ChatID: userID, UpdateID: updateID, CallbackID: "cb-" + token, Event: cb})
}

// seed stores a session directly, bypassing the router.
func (h *harness) seed(s *domain.Session) {
	h.t.Helper()
	require.NoError(h.t, h.sessions.Save(context.Background(), s))
	h.records.puts.Store(0)
}

func (h *harness) load(userID int64) *domain.Session {
	h.t.Helper()
	s, err := h.sessions.Load(context.Background(), userID)
	require.NoError(h.t, err)
	return s
}

func (h *harness) measurements(userID int64) []domain.Measurement {
	h.t.Helper()
	ms, err := h.journal.Measurements(context.Background(), userID, 0)
	require.NoError(h.t, err)
	return ms
}

func (h *harness) tr(key string, args ...any) string {
	return h.catalog.T(domain.LanguageRussian, key, args...)
}

func (h *harness) num(v float64, decimals int) string {
	return h.catalog.Number(domain.LanguageRussian, v, decimals)
}

func sessionAt(userID int64, phase domain.Phase, scratch map[string]string) *domain.Session {
	s := domain.NewSession(userID)
	s.Phase = phase
	for k, v := range scratch {
		s.SetScratch(k, v)
	}
	return s
}

var errStorageDown = errors.New("storage down")
