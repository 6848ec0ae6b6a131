// Package httpapi serves the liveness endpoint and a small status API.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwizi/groundbot/internal/config"
	"github.com/dwizi/groundbot/internal/heartbeat"
)

type ModelStatusProvider interface {
	Models() []string
	Last() string
}

type Dependencies struct {
	Config    config.Config
	Heartbeat *heartbeat.Registry
	Models    ModelStatusProvider
	Version   string
	StartedAt time.Time
	Logger    *slog.Logger
}

type router struct {
	deps Dependencies
}

// NewRouter answers "/" and "/healthz" with a plain "ok" regardless of the
// state of the chat pipeline.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/", rt.handleLiveness)
	r.Head("/", rt.handleLiveness)
	r.Get("/healthz", rt.handleLiveness)
	r.Head("/healthz", rt.handleLiveness)
	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/heartbeat", rt.handleHeartbeat)
		api.Get("/info", rt.handleInfo)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
