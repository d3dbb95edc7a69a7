package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/msomdec/diabot/internal/config"
	"github.com/msomdec/diabot/internal/content"
	"github.com/msomdec/diabot/internal/domain"
	"github.com/msomdec/diabot/internal/handler"
	"github.com/msomdec/diabot/internal/locale"
	"github.com/msomdec/diabot/internal/repository/filestore"
	"github.com/msomdec/diabot/internal/repository/sqlite"
	"github.com/msomdec/diabot/internal/service"
	"github.com/msomdec/diabot/internal/vault"
)

// handleTimeout bounds one event from lock acquisition to reply delivery.
const handleTimeout = 30 * time.Second

// openStorage opens the configured backend and brings its layout up to date.
func openStorage(ctx context.Context, cfg *config.Config) (domain.Storage, error) {
	var storage domain.Storage
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := sqlite.New(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		storage = db
	default:
		storage = filestore.New(cfg.DataDir)
	}

	if err := storage.Migrate(ctx); err != nil {
		storage.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}
	return storage, nil
}

// stores builds the encrypted session and journal stores over storage.
func stores(cfg *config.Config, storage domain.Storage) (*service.SessionStore, *service.Journal, error) {
	codec, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return nil, nil, err
	}
	return service.NewSessionStore(storage.Records(), codec), service.NewJournal(storage.Logs(), codec), nil
}

// newHandler assembles the router and the HTTP surface. The returned
// limiter must be stopped by the caller.
func newHandler(cfg *config.Config, storage domain.Storage, messenger domain.Messenger) (http.Handler, *service.TokenBucket, error) {
	sessions, journal, err := stores(cfg, storage)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := locale.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load messages: %w", err)
	}
	library, err := content.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load content: %w", err)
	}

	router := service.NewRouter(service.RouterDeps{
		Sessions:  sessions,
		Journal:   journal,
		Catalog:   catalog,
		Library:   library,
		Messenger: messenger,
	}, service.DefaultModules()...)

	limiter := service.NewTokenBucket(cfg.RateLimit, cfg.RateBurst)
	webhook := handler.NewWebhookHandler(cfg.WebhookSecret, router, limiter, handleTimeout)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, webhook)
	return handler.Wrap(mux), limiter, nil
}
