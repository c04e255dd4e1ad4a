package handler

import (
	"net/http"

	"github.com/mcoot/relsync/internal/api/response"
	"github.com/mcoot/relsync/internal/engine"
)

// SessionHandler exposes the engine's authentication operations
type SessionHandler struct {
	engine *engine.Engine
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(e *engine.Engine) *SessionHandler {
	return &SessionHandler{engine: e}
}

// Login handles POST /api/v1/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Login(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	h.write(w)
}

// Logout handles POST /api/v1/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.engine.Logout(r.Context())
	h.write(w)
}

// PlayOffline handles POST /api/v1/session/offline
func (h *SessionHandler) PlayOffline(w http.ResponseWriter, r *http.Request) {
	h.engine.PlayOffline(r.Context())
	h.write(w)
}

// ChangeAccount handles POST /api/v1/session/change-account
func (h *SessionHandler) ChangeAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ChangeAccount(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	h.write(w)
}

func (h *SessionHandler) write(w http.ResponseWriter) {
	response.JSON(w, http.StatusOK, response.Session{Authenticated: h.engine.Authenticated()})
}
