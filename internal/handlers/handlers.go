package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hokmd/internal/hub"
	"hokmd/internal/store"
)

const readinessTimeout = 2 * time.Second

// Handler holds dependencies for HTTP handlers
type Handler struct {
	hub      *hub.Hub
	store    *store.Store
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a new handler
func New(h *hub.Hub, st *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    h,
		store:  st,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Game clients connect from arbitrary origins; identity is
			// established by session, not by origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Hub returns the handler's hub (for testing)
func (h *Handler) Hub() *hub.Hub {
	return h.hub
}

// ServeWS upgrades the request and hands the connection to the hub. After a
// successful upgrade all traffic is frames; HTTP is done with this request.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error to the client.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.hub.Serve(conn)
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HealthReady reports whether the server can do useful work, which means
// the session store answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
