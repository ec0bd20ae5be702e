// Package admin exposes the gateway's operator surface: live call state,
// daily cap usage, and a calendar cache reload trigger. The endpoints are
// meant for an internal network, not the public webhook host.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/atelic-ai/voceria/internal/session"
)

// CacheReloader refreshes the availability cache on demand. The calendar
// slot cache implements it.
type CacheReloader interface {
	Reload(ctx context.Context) error
}

// Handler serves the /admin routes.
type Handler struct {
	manager *session.Manager
	cache   CacheReloader
	log     *slog.Logger
}

// New creates a Handler. cache may be nil when no calendar webhook is
// configured; /admin/reload-cache then answers 404.
func New(manager *session.Manager, cache CacheReloader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{manager: manager, cache: cache, log: log}
}

// callStatusResponse is the body of GET /admin/call-status.
type callStatusResponse struct {
	Active int                `json:"active"`
	Calls  []session.Snapshot `json:"calls"`
}

// CallStatus reports every live session.
func (h *Handler) CallStatus(w http.ResponseWriter, _ *http.Request) {
	snaps := h.manager.Snapshots()
	if snaps == nil {
		snaps = []session.Snapshot{}
	}
	writeJSON(w, http.StatusOK, callStatusResponse{
		Active: len(snaps),
		Calls:  snaps,
	})
}

// RateLimitStatus reports today's daily cap usage.
func (h *Handler) RateLimitStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.RateLimit())
}

// ReloadCache forces a fresh availability fetch from the calendar webhook.
func (h *Handler) ReloadCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		http.Error(w, `{"error":"no calendar configured"}`, http.StatusNotFound)
		return
	}
	if err := h.cache.Reload(r.Context()); err != nil {
		h.log.Error("cache reload failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "fail",
			"error":  err.Error(),
		})
		return
	}
	h.log.Info("availability cache reloaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Register adds the admin routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/call-status", h.CallStatus)
	mux.HandleFunc("GET /admin/rate-limit-status", h.RateLimitStatus)
	mux.HandleFunc("POST /admin/reload-cache", h.ReloadCache)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
