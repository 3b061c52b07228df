package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/openclinic/scheduling/internal/timeutil"
)

// DefaultInterval seeds newly enabled weekdays with standard office hours.
var DefaultInterval = timeutil.Interval{Start: 9 * 60, End: 17 * 60}

// WeekdayHours is the recurring availability of one provider on one weekday.
// Intervals are retained while a day is disabled so that re-enabling a day
// restores its previous hours, but disabled days never produce slots.
type WeekdayHours struct {
	ProviderID uuid.UUID
	Weekday    time.Weekday
	Enabled    bool
	Intervals  []timeutil.Interval
	UpdatedAt  time.Time
}

// DefaultWeek is the availability a provider starts with: Mon-Fri office
// hours, weekend off.
func DefaultWeek(providerID uuid.UUID) []WeekdayHours {
	week := make([]WeekdayHours, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		enabled := wd != time.Saturday && wd != time.Sunday
		day := WeekdayHours{
			ProviderID: providerID,
			Weekday:    wd,
			Enabled:    enabled,
		}
		if enabled {
			day.Intervals = []timeutil.Interval{DefaultInterval}
		}
		week = append(week, day)
	}
	return week
}

// BlockedPeriod is a one-off exception tied to a specific calendar date.
// It only ever subtracts from the weekly hours on that date.
type BlockedPeriod struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Day        time.Time
	Interval   timeutil.Interval
	Reason     *string
	CreatedAt  time.Time
}

// Slot is a candidate bookable interval. Slots are derived on every read
// and never persisted; a slot only materializes as an appointment once
// booked.
type Slot struct {
	ProviderID uuid.UUID         `json:"provider_id"`
	Day        time.Time         `json:"-"`
	Interval   timeutil.Interval `json:"interval"`
}
