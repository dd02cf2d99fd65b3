package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(rebuilder Rebuilder, records Records, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(rebuilder, records)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/exports/{period}/rebuild", h.Rebuild)
	r.Get("/exports/{period}", h.GetExport)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
