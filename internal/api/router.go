package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduling/internal/counseling"
)

type RouterConfig struct {
	Service  *counseling.Service
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Logger   *zap.Logger
	Location *time.Location
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Health and metrics endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	h := &handlers{
		svc:      cfg.Service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		loc:      loc,
	}

	r.Route("/counseling", func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Get("/professors/my", h.myProfessors)
		r.Get("/my-slots", h.mySlots)

		r.Get("/slots/open", h.openSlots)
		r.Post("/slots/single", h.createSingleSlot)
		r.Post("/slots/weekly", h.createWeeklyPattern)
		r.Delete("/slots/{slotID}", h.deleteSlot)
		r.Post("/slots/{slotID}/reserve", h.reserveSlot)
		r.Get("/slots/{slotID}/reservations", h.slotReservations)
		r.Put("/slots/{slotID}/meeting", h.attachMeeting)

		r.Delete("/reservations/{reservationID}", h.cancelReservation)
		r.Post("/reservations/{reservationID}/approve", h.approveReservation)
	})

	return r
}
