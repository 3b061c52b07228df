package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/openclinic/scheduling/internal/booking"
	"github.com/openclinic/scheduling/internal/schedule"
	"github.com/openclinic/scheduling/internal/timeutil"
)

type SetDayRequest struct {
	Enabled   bool                `json:"enabled"`
	Intervals []timeutil.Interval `json:"intervals"`
}

type DayResponse struct {
	Weekday   string              `json:"weekday"`
	Enabled   bool                `json:"enabled"`
	Intervals []timeutil.Interval `json:"intervals"`
}

type WeekResponse struct {
	ProviderID uuid.UUID     `json:"provider_id"`
	Days       []DayResponse `json:"days"`
}

type AddBlockRequest struct {
	Date     string            `json:"date"`
	Interval timeutil.Interval `json:"interval"`
	Reason   string            `json:"reason,omitempty"`
}

type BlockResponse struct {
	ID       uuid.UUID         `json:"id"`
	Date     string            `json:"date"`
	Interval timeutil.Interval `json:"interval"`
	Reason   *string           `json:"reason,omitempty"`
}

type SlotsResponse struct {
	ProviderID      uuid.UUID           `json:"provider_id"`
	Date            string              `json:"date"`
	DurationMinutes int                 `json:"duration_minutes"`
	Slots           []timeutil.Interval `json:"slots"`
}

type BookAppointmentRequest struct {
	ProviderID string            `json:"provider_id"`
	PatientID  string            `json:"patient_id"`
	Date       string            `json:"date"`
	Interval   timeutil.Interval `json:"interval"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type AppointmentResponse struct {
	ID           uuid.UUID         `json:"id"`
	ProviderID   uuid.UUID         `json:"provider_id"`
	PatientID    uuid.UUID         `json:"patient_id"`
	Date         string            `json:"date"`
	Interval     timeutil.Interval `json:"interval"`
	Status       string            `json:"status"`
	CancelReason *string           `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		ProviderID:   a.ProviderID,
		PatientID:    a.PatientID,
		Date:         timeutil.FormatDate(a.Day),
		Interval:     a.Interval,
		Status:       string(a.Status),
		CancelReason: a.CancelReason,
		CreatedAt:    a.CreatedAt,
	}
}

func toDayResponse(d schedule.WeekdayHours) DayResponse {
	intervals := d.Intervals
	if intervals == nil {
		intervals = []timeutil.Interval{}
	}
	return DayResponse{
		Weekday:   weekdayName(d.Weekday),
		Enabled:   d.Enabled,
		Intervals: intervals,
	}
}

func toBlockResponse(b *schedule.BlockedPeriod) BlockResponse {
	return BlockResponse{
		ID:       b.ID,
		Date:     timeutil.FormatDate(b.Day),
		Interval: b.Interval,
		Reason:   b.Reason,
	}
}
