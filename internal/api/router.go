package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openclinic/scheduling/internal/booking"
	"github.com/openclinic/scheduling/internal/metrics"
	"github.com/openclinic/scheduling/internal/schedule"
	"github.com/openclinic/scheduling/internal/timeutil"
)

// ScheduleService is the availability surface the handlers need.
type ScheduleService interface {
	WeekFor(ctx context.Context, providerID uuid.UUID) ([]schedule.WeekdayHours, error)
	SetDay(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, enabled bool, intervals []timeutil.Interval) (*schedule.WeekdayHours, error)
	AddBlock(ctx context.Context, providerID uuid.UUID, day time.Time, interval timeutil.Interval, reason string) (*schedule.BlockedPeriod, error)
	RemoveBlock(ctx context.Context, id uuid.UUID) error
	BlocksOn(ctx context.Context, providerID uuid.UUID, day time.Time) ([]schedule.BlockedPeriod, error)
}

// SlotSource derives the free slots for a provider-day.
type SlotSource interface {
	Slots(ctx context.Context, providerID uuid.UUID, day time.Time, durationMinutes int) ([]schedule.Slot, error)
}

// BookingService is the ledger surface the handlers need.
type BookingService interface {
	Book(ctx context.Context, providerID, patientID uuid.UUID, day time.Time, interval timeutil.Interval) (*booking.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Start(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*booking.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]booking.Appointment, error)
}

type RouterConfig struct {
	Schedule ScheduleService
	Slots    SlotSource
	Bookings BookingService
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Outbox   PendingCounter
	Metrics  *metrics.SchedulingMetrics
	Logger   *zap.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Outbox, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Provider availability and exceptions
	r.Route("/providers/{id}", func(r chi.Router) {
		r.Get("/availability", getAvailabilityHandler(cfg.Schedule))
		r.Put("/availability/{weekday}", setDayHandler(cfg.Schedule))
		r.Get("/blocks", listBlocksHandler(cfg.Schedule))
		r.Post("/blocks", addBlockHandler(cfg.Schedule))
		r.Get("/slots", slotsHandler(cfg.Slots, cfg.Metrics))
	})
	r.Delete("/blocks/{id}", removeBlockHandler(cfg.Schedule))

	// Appointments
	r.Post("/appointments", bookAppointmentHandler(cfg.Bookings))
	r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Bookings, "confirm"))
	r.Post("/appointments/{id}/start", transitionHandler(cfg.Bookings, "start"))
	r.Post("/appointments/{id}/complete", transitionHandler(cfg.Bookings, "complete"))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))

	return r
}
