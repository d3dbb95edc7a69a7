package handler

import (
	"net/http"
)

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, webhook *WebhookHandler) {
	mux.HandleFunc("GET /healthz", HandleHealthz)
	mux.HandleFunc("POST /webhook/{token}", webhook.HandleUpdate)
}

// Wrap applies the standard middleware chain.
func Wrap(h http.Handler) http.Handler {
	return RequestID(LogRequests(SecurityHeaders(h)))
}
