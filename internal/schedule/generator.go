package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openclinic/scheduling/internal/timeutil"
)

// AppointmentSource exposes the intervals already taken by non-cancelled
// appointments. Implemented by the booking repository.
type AppointmentSource interface {
	ActiveIntervals(ctx context.Context, providerID uuid.UUID, day time.Time) ([]timeutil.Interval, error)
}

// Generator derives the bookable slots for a provider-day. Generation is a
// pure read over three inputs (weekly hours, blocks, existing bookings) and
// is recomputed on every call; the result is a best-effort snapshot that
// can go stale the moment a concurrent booking lands. Correctness is
// enforced at booking time, not here.
type Generator struct {
	schedules *Service
	booked    AppointmentSource
}

func NewGenerator(schedules *Service, booked AppointmentSource) *Generator {
	return &Generator{
		schedules: schedules,
		booked:    booked,
	}
}

// Slots returns the ordered free slots of exactly durationMinutes each for
// the given date. Open intervals are walked in fixed steps from their
// start; a trailing remainder shorter than the duration is dropped, never
// truncated.
func (g *Generator) Slots(ctx context.Context, providerID uuid.UUID, day time.Time, durationMinutes int) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, durationMinutes)
	}
	day = timeutil.DateOnly(day)

	remaining, err := g.schedules.openMinusBlocks(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		return nil, nil
	}

	taken, err := g.booked.ActiveIntervals(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked intervals: %w", err)
	}

	step := timeutil.ClockTime(durationMinutes)
	var slots []Slot
	for _, open := range remaining {
		for start := open.Start; start+step <= open.End; start += step {
			candidate := timeutil.Interval{Start: start, End: start + step}
			if overlapsAny(candidate, taken) {
				continue
			}
			slots = append(slots, Slot{
				ProviderID: providerID,
				Day:        day,
				Interval:   candidate,
			})
		}
	}
	return slots, nil
}

func overlapsAny(candidate timeutil.Interval, taken []timeutil.Interval) bool {
	for _, iv := range taken {
		if candidate.Overlaps(iv) {
			return true
		}
	}
	return false
}
