// Package httpapi mounts the control plane's HTTP surface (spec §6.2)
// on go-chi/chi/v5, gated by the drain middleware and, for mutating
// endpoints, the idempotency middleware.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/flywheel-gateway/control-plane/config"
	domaindrain "github.com/flywheel-gateway/control-plane/internal/drain"
	"github.com/flywheel-gateway/control-plane/internal/hub"
	"github.com/flywheel-gateway/control-plane/internal/httperror"
	"github.com/flywheel-gateway/control-plane/internal/idempotency"
)

// Router builds the chi.Mux exposing health, maintenance control, hub
// diagnostics, and a representative idempotency-gated mutating endpoint.
type Router struct {
	logger        *slog.Logger
	hub           *hub.Hub
	drain         *domaindrain.Controller
	idempotency   *idempotency.Cache
	idempotentCfg idempotency.MiddlewareConfig
}

// NewRouter constructs a Router. Authentication, the individual domain
// producers (agent runners, conflict detectors, etc.), and the
// persistent database are external collaborators (spec §1 Out of
// scope) not modeled here.
func NewRouter(logger *slog.Logger, h *hub.Hub, d *domaindrain.Controller, cache *idempotency.Cache, cfg config.Config) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:        logger,
		hub:           h,
		drain:         d,
		idempotency:   cache,
		idempotentCfg: idempotencyMiddlewareConfig(cfg),
	}
}

// idempotencyMiddlewareConfig builds the gated-methods/excluded-paths
// config from the loaded idempotency.methods / idempotency.excludePaths
// settings (spec §6.3), falling back to idempotency.DefaultMiddlewareConfig
// when the methods list is empty.
func idempotencyMiddlewareConfig(cfg config.Config) idempotency.MiddlewareConfig {
	if len(cfg.Idempotency.Methods) == 0 {
		return idempotency.DefaultMiddlewareConfig()
	}
	methods := make(map[string]bool, len(cfg.Idempotency.Methods))
	for _, m := range cfg.Idempotency.Methods {
		methods[m] = true
	}
	return idempotency.MiddlewareConfig{
		Methods:      methods,
		ExcludePaths: cfg.Idempotency.ExcludePaths,
	}
}

// Mux builds and returns the chi.Mux.
func (rt *Router) Mux() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(domaindrain.Middleware(rt.drain, domaindrain.DefaultMiddlewareConfig()))

	r.Get("/health", rt.handleHealth)
	r.Get("/healthz", rt.handleHealth)

	r.Route("/internal/maintenance", func(r chi.Router) {
		r.Post("/drain", rt.handleStartDraining)
		r.Post("/resume", rt.handleResume)
	})

	r.Get("/internal/hub/stats", rt.handleHubStats)

	idempotent := idempotency.Middleware(rt.idempotency, rt.idempotentCfg)
	r.With(idempotent).Post("/v1/workspaces/{workspaceId}/reservations", rt.handleCreateReservation)

	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (rt *Router) handleHubStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rt.hub.Stats())
}

type drainRequest struct {
	DeadlineSeconds int    `json:"deadlineSeconds"`
	Reason          string `json:"reason"`
}

func (rt *Router) handleStartDraining(w http.ResponseWriter, r *http.Request) {
	var req drainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.Write(w, http.StatusBadRequest, "INVALID_FORMAT", "malformed request body", "recoverable")
		return
	}
	if err := rt.drain.StartDraining(req.DeadlineSeconds, req.Reason); err != nil {
		httperror.Write(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "recoverable")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (rt *Router) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := rt.drain.Resume(); err != nil {
		httperror.Write(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "recoverable")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type createReservationRequest struct {
	ResourceID string `json:"resourceId"`
}

// handleCreateReservation is the one representative mutating endpoint
// exercising idempotency replay end-to-end (spec §8 scenario S5 uses
// a generic POST /x; this is its concrete instantiation against the
// reservations domain named in spec §3's workspace:reservations
// channel).
func (rt *Router) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceId")

	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.Write(w, http.StatusBadRequest, "INVALID_FORMAT", "malformed request body", "recoverable")
		return
	}
	if req.ResourceID == "" {
		httperror.Write(w, http.StatusBadRequest, "INVALID_FORMAT", "resourceId is required", "recoverable")
		return
	}

	reservationID := uuid.NewString()
	_, _ = rt.hub.Publish("workspace:reservations:"+workspaceID, "reservation.created", map[string]any{
		"reservationId": reservationID,
		"resourceId":    req.ResourceID,
	}, nil)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": reservationID})
}
