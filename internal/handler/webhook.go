package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/msomdec/diabot/internal/domain"
	"github.com/msomdec/diabot/internal/service"
	"github.com/msomdec/diabot/internal/telegram"
)

// MaxUpdateBytes bounds the accepted webhook body.
const MaxUpdateBytes = 1 << 20

// SecretHeader carries the secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Dispatcher handles one decoded event. Acknowledge answers a button tap
// that could not be decoded.
type Dispatcher interface {
	Handle(ctx context.Context, in domain.Inbound) (*service.Outcome, error)
	Acknowledge(ctx context.Context, callbackID string)
}

// Limiter decides whether a user's event may be processed now.
type Limiter interface {
	Allow(userID int64) bool
}

// WebhookHandler receives Bot API updates.
type WebhookHandler struct {
	secret     []byte
	dispatcher Dispatcher
	limiter    Limiter
	timeout    time.Duration
}

// NewWebhookHandler creates a WebhookHandler. limiter may be nil.
func NewWebhookHandler(secret string, dispatcher Dispatcher, limiter Limiter, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookHandler{
		secret:     []byte(secret),
		dispatcher: dispatcher,
		limiter:    limiter,
		timeout:    timeout,
	}
}

func (h *WebhookHandler) authorize(r *http.Request) error {
	if subtle.ConstantTimeCompare([]byte(r.PathValue("token")), h.secret) != 1 {
		return fmt.Errorf("%w: path token mismatch", domain.ErrUnauthorized)
	}
	if hdr := r.Header.Get(SecretHeader); hdr != "" && subtle.ConstantTimeCompare([]byte(hdr), h.secret) != 1 {
		return fmt.Errorf("%w: secret header mismatch", domain.ErrUnauthorized)
	}
	return nil
}

// HandleUpdate processes POST /webhook/{token}. Anything after
// authentication is answered 200 so Telegram does not redeliver it forever.
func (h *WebhookHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("request_id", RequestIDFromContext(r.Context()))

	if err := h.authorize(r); err != nil {
		logger.Warn("webhook rejected", "error", err)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUpdateBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("webhook body too large", "limit", tooLarge.Limit)
		} else {
			logger.Warn("webhook body unreadable", "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	update, err := telegram.ParseUpdate(body)
	if err != nil {
		logger.Warn("malformed update ignored", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	in, err := telegram.Decode(update)
	if err != nil {
		logger.Info("update not dispatched", "update_id", update.UpdateID, "error", err)
		if q := update.CallbackQuery; q != nil && q.ID != "" {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
			h.dispatcher.Acknowledge(ctx, q.ID)
			cancel()
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if h.limiter != nil && !h.limiter.Allow(in.UserID) {
		logger.Warn("rate limit exceeded, update dropped", "user_id", in.UserID, "update_id", in.UpdateID)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	// A disconnecting client must not abort a half-applied transition.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	if _, err := h.dispatcher.Handle(ctx, in); err != nil {
		logger.Error("update handling failed", "user_id", in.UserID, "update_id", in.UpdateID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
