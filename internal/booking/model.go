package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/openclinic/scheduling/internal/timeutil"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions is the full lifecycle: scheduled -> confirmed -> in_progress
// -> completed, with cancellation possible from any non-terminal state.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Appointment is a booked slot. Rows are never hard-deleted; cancellation
// is a terminal status so that history survives, and only non-cancelled
// rows count toward the no-overlap invariant.
type Appointment struct {
	ID           uuid.UUID
	ProviderID   uuid.UUID
	PatientID    uuid.UUID
	Day          time.Time
	Interval     timeutil.Interval
	Status       Status
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
