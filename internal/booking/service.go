package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openclinic/scheduling/internal/metrics"
	redisclient "github.com/openclinic/scheduling/internal/redis"
	"github.com/openclinic/scheduling/internal/schedule"
	"github.com/openclinic/scheduling/internal/timeutil"
)

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrReasonRequired      = errors.New("cancellation requires a reason")
	ErrOutsideWorkingHours = errors.New("interval is outside the provider's working hours")
)

// HoursChecker validates a requested interval against availability minus
// blocks. Implemented by the schedule service.
type HoursChecker interface {
	WithinWorkingHours(ctx context.Context, providerID uuid.UUID, day time.Time, interval timeutil.Interval) (bool, error)
}

// Service is the booking ledger: the sole writer of appointment rows and
// status transitions. Slot listings are best-effort snapshots; this is
// where staleness stops being tolerated.
type Service struct {
	repo    Repository
	hours   HoursChecker
	locker  redisclient.DayLocker
	metrics *metrics.SchedulingMetrics
	logger  *zap.Logger
}

func NewService(repo Repository, hours HoursChecker, locker redisclient.DayLocker, m *metrics.SchedulingMetrics, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		hours:   hours,
		locker:  locker,
		metrics: m,
		logger:  logger,
	}
}

// Book reserves an interval for a patient. The check-and-reserve runs under
// the provider-day lock and inside one transaction, so of N concurrent
// attempts on overlapping intervals exactly one succeeds; the rest fail
// with ErrSlotTaken. Losing the race is the designed outcome of contention,
// not an anomaly, and is logged accordingly.
func (s *Service) Book(ctx context.Context, providerID, patientID uuid.UUID, day time.Time, interval timeutil.Interval) (*Appointment, error) {
	if !interval.Valid() {
		s.metrics.ObserveBooking(metrics.OutcomeRejected)
		return nil, fmt.Errorf("%w: %s", schedule.ErrInvalidInterval, interval)
	}
	day = timeutil.DateOnly(day)

	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	open, err := s.hours.WithinWorkingHours(ctx, providerID, day, interval)
	if err != nil {
		return nil, fmt.Errorf("check working hours: %w", err)
	}
	if !open {
		s.metrics.ObserveBooking(metrics.OutcomeRejected)
		return nil, ErrOutsideWorkingHours
	}

	var created *Appointment
	err = s.locker.WithDayLock(ctx, providerID, day, func(lockCtx context.Context) error {
		appt, err := s.repo.BookExclusive(lockCtx, &Appointment{
			ProviderID: providerID,
			PatientID:  patientID,
			Day:        day,
			Interval:   interval,
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) || errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveBooking(metrics.OutcomeConflict)
			s.logger.Debug("booking race lost",
				zap.String("provider_id", providerID.String()),
				zap.String("day", timeutil.FormatDate(day)),
				zap.Stringer("interval", interval),
			)
			return nil, fmt.Errorf("%w: %s on %s", ErrSlotTaken, interval, timeutil.FormatDate(day))
		}
		return nil, err
	}

	s.metrics.ObserveBooking(metrics.OutcomeBooked)
	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("provider_id", providerID.String()),
		zap.String("day", timeutil.FormatDate(day)),
		zap.Stringer("interval", interval),
	)
	return created, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, nil)
}

// Start moves a confirmed appointment to in_progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, nil)
}

// Complete moves an in_progress appointment to its terminal completed state.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, nil)
}

// Cancel transitions to cancelled and thereby frees the interval for future
// bookings. The row is kept; cancellation is a status, not a deletion.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.transition(ctx, id, StatusCancelled, &reason)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, reason *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !appt.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to, reason)
	if err != nil {
		// A concurrent transition moved the row first; the conditional
		// update matched nothing.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
		}
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	s.logger.Info("appointment transitioned",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// Get retrieves one appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListByPatient retrieves a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListByProviderDay retrieves all appointments for a provider-day,
// cancelled ones included.
func (s *Service) ListByProviderDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error) {
	return s.repo.ListByProviderDay(ctx, providerID, timeutil.DateOnly(day))
}
