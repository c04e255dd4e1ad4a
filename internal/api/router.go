package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/relsync/internal/api/apierr"
	"github.com/mcoot/relsync/internal/api/handler"
	"github.com/mcoot/relsync/internal/api/middleware"
	"github.com/mcoot/relsync/internal/engine"
	httpmw "github.com/mcoot/relsync/internal/middleware"
	"github.com/mcoot/relsync/internal/web/sse"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger *slog.Logger
	Engine *engine.Engine
	Hub    *sse.Hub
	// APIKey, when set, is required as a bearer token on every route
	// except health
	APIKey string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	stateHandler := handler.NewStateHandler(cfg.Engine, cfg.Hub)
	sessionHandler := handler.NewSessionHandler(cfg.Engine)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(httpmw.Logging(cfg.Logger))
	api.Use(httpmw.Recovery(cfg.Logger, apierr.WritePanic))

	// Health check endpoint (no auth)
	api.HandleFunc("/health", stateHandler.Health).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Auth(cfg.APIKey))

	// State routes
	protected.HandleFunc("/me", stateHandler.Me).Methods(http.MethodGet)
	protected.HandleFunc("/relationships", stateHandler.Relationships).Methods(http.MethodGet)
	protected.HandleFunc("/profiles/{id}", stateHandler.Profile).Methods(http.MethodGet)
	protected.HandleFunc("/reconcile", stateHandler.Reconcile).Methods(http.MethodPost)
	protected.HandleFunc("/events", stateHandler.Events).Methods(http.MethodGet)

	// Session routes
	protected.HandleFunc("/session/login", sessionHandler.Login).Methods(http.MethodPost)
	protected.HandleFunc("/session/logout", sessionHandler.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/session/offline", sessionHandler.PlayOffline).Methods(http.MethodPost)
	protected.HandleFunc("/session/change-account", sessionHandler.ChangeAccount).Methods(http.MethodPost)

	return r
}
