package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

// AppointmentService is the subset of *appointment.Scheduler the HTTP layer
// drives.
type AppointmentService interface {
	Create(ctx context.Context, in appointment.CreateInput) (*appointment.View, error)
	List(ctx context.Context, f appointment.Filter) ([]appointment.View, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.View, error)
	Update(ctx context.Context, id uuid.UUID, in appointment.UpdateInput) (*appointment.View, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type RouterConfig struct {
	Service  AppointmentService
	Auth     AuthConfig
	Postgres Pinger
	Redis    Pinger
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware)
	r.Use(MetricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, msgRouteNotFound)
	})

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/appointments", func(r chi.Router) {
		r.Use(JWTMiddleware(cfg.Auth))
		r.Use(RequireRoles(appointment.RoleAdmin, appointment.RoleReceptionist, appointment.RoleDoctor))

		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Get("/", listAppointmentsHandler(cfg.Service))
		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Put("/{id}", updateAppointmentHandler(cfg.Service))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Service))
	})

	return r
}
