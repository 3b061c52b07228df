package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openclinic/scheduling/internal/timeutil"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken means the caller lost a booking race: the interval
	// overlaps a non-cancelled appointment. Expected under contention.
	ErrSlotTaken = errors.New("slot is already booked")
)

// Repository contains all DB interactions needed by the ledger service.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ActiveIntervals returns the intervals of non-cancelled appointments
	// for a provider-day; also feeds the slot generator.
	ActiveIntervals(ctx context.Context, providerID uuid.UUID, day time.Time) ([]timeutil.Interval, error)

	// BookExclusive re-checks for overlap and inserts the appointment as a
	// single transaction, enqueueing the booked event alongside it.
	// Returns ErrSlotTaken if any non-cancelled appointment overlaps.
	BookExclusive(ctx context.Context, appt *Appointment) (*Appointment, error)

	// UpdateStatus applies a transition conditionally on the current
	// status and enqueues the matching event in the same transaction.
	// Returns ErrAppointmentNotFound when no row matched, which the
	// service treats as a lost transition race.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) (*Appointment, error)

	ListByProviderDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
}
