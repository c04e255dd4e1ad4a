package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/relsync/internal/api/response"
	"github.com/mcoot/relsync/internal/engine"
	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/web/sse"
)

// StateHandler serves read access to the engine's committed state
type StateHandler struct {
	engine *engine.Engine
	hub    *sse.Hub
}

// NewStateHandler creates a new state handler
func NewStateHandler(e *engine.Engine, hub *sse.Hub) *StateHandler {
	return &StateHandler{engine: e, hub: hub}
}

// Health handles GET /api/v1/health
func (h *StateHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{
		Status:        "ok",
		Initialized:   h.engine.Initialized(),
		Authenticated: h.engine.Authenticated(),
	})
}

// Me handles GET /api/v1/me
func (h *StateHandler) Me(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.engine.Snapshot())
}

// Relationships handles GET /api/v1/relationships
func (h *StateHandler) Relationships(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.RelationshipsFromSnapshot(h.engine.Snapshot()))
}

// Profile handles GET /api/v1/profiles/{id}
func (h *StateHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParsePeerID(mux.Vars(r)["id"])
	if err != nil {
		WriteError(w, NewInvalidRequestError("invalid peer id"))
		return
	}

	profile, err := h.engine.Profile(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, profile)
}

// Reconcile handles POST /api/v1/reconcile
func (h *StateHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Reconcile(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ReconcileFromReport(report))
}

// Events handles GET /api/v1/events. The current state is sent first,
// then every committed change.
func (h *StateHandler) Events(w http.ResponseWriter, r *http.Request) {
	sse.ServeSSE(w, r, h.hub, r.RemoteAddr, func() ([]byte, error) {
		return sse.StateMessage(h.engine.Snapshot())
	})
}
