package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medbook/clinic-booking/internal/booking"
)

type RouterConfig struct {
	Service   *booking.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    *zap.Logger
	JWTSecret string
	RateLimit int // requests per second per client IP
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Second))
	}

	// Health endpoints stay outside auth.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Ops-plane sweep trigger, expected to be fronted by network policy.
	r.Post("/internal/sweep", sweepHandler(cfg.Service, cfg.Logger))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/doctors/{doctorID}/slots/generate", generateSlotsHandler(cfg.Service, cfg.Logger))
		r.Get("/doctors/{doctorID}/slots", listSlotsHandler(cfg.Service, cfg.Logger))
		r.Put("/doctors/{doctorID}/schedule", updateScheduleHandler(cfg.Service, cfg.Logger))

		r.Post("/appointments", bookHandler(cfg.Service, cfg.Logger))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service, cfg.Logger))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service, cfg.Logger))
	})

	return r
}
