package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/imanmay2/sehat-server/internal/availability"
	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/connectivity"
	"github.com/imanmay2/sehat-server/internal/pharmacy"
	"github.com/imanmay2/sehat-server/internal/session"
	"github.com/imanmay2/sehat-server/internal/syncqueue"
)

type RouterConfig struct {
	Bookings     *booking.Service
	Availability availability.Store
	Sessions     *session.Negotiator
	Queue        *syncqueue.Queue
	Pharmacies   *pharmacy.Service
	Connectivity connectivity.Source
	Logger       zerolog.Logger
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Availability
	r.Get("/providers/{id}/slots", listOpenSlotsHandler(cfg.Availability))

	// Appointments
	r.Post("/appointments", bookAppointmentHandler(cfg.Bookings))
	r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/join", joinSessionHandler(cfg.Sessions))

	// Consultation sessions
	r.Get("/sessions/{id}", getSessionHandler(cfg.Sessions))
	r.Post("/sessions/{id}/connected", markConnectedHandler(cfg.Sessions))
	r.Post("/sessions/{id}/quality", reportQualityHandler(cfg.Sessions))
	r.Get("/sessions/{id}/quality/ws", qualityFeedHandler(cfg.Sessions, cfg.Logger))
	r.Post("/sessions/{id}/end", endSessionHandler(cfg.Sessions))

	// Connectivity and offline sync
	r.Get("/connectivity", connectivityHandler(cfg.Connectivity))
	r.Post("/sync/mutations", enqueueMutationHandler(cfg.Queue))
	r.Get("/sync/mutations", listPendingMutationsHandler(cfg.Queue))
	r.Post("/sync/flush", flushQueueHandler(cfg.Queue))
	r.Get("/sync/dead-letters", listDeadLettersHandler(cfg.Queue))

	// Pharmacy stock and medicine locator
	r.Get("/pharmacies/{id}/stock", listStockHandler(cfg.Pharmacies))
	r.Put("/pharmacies/{id}/stock", updateStockHandler(cfg.Pharmacies))
	r.Get("/medicines/{medicine}/pharmacies", findMedicineHandler(cfg.Pharmacies))

	return r
}
