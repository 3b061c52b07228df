package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openclinic/scheduling/internal/events"
	"github.com/openclinic/scheduling/internal/timeutil"
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db     DB
	outbox *events.Store
}

func NewPgRepository(db DB, outbox *events.Store) *PgRepository {
	return &PgRepository{
		db:     db,
		outbox: outbox,
	}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		start  int
		end    int
		reason *string
	)

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.Day,
		&start,
		&end,
		&a.Status,
		&reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Interval.Start = timeutil.ClockTime(start)
	a.Interval.End = timeutil.ClockTime(end)
	a.CancelReason = reason
	return &a, nil
}

const appointmentColumns = `id, provider_id, patient_id, day, start_minute, end_minute, status, cancel_reason, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ActiveIntervals(ctx context.Context, providerID uuid.UUID, day time.Time) ([]timeutil.Interval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_minute, end_minute
		FROM appointments
		WHERE provider_id = $1 AND day = $2 AND status <> 'cancelled'
		ORDER BY start_minute
	`, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("list active intervals: %w", err)
	}
	defer rows.Close()

	var taken []timeutil.Interval
	for rows.Next() {
		var start, end int
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		taken = append(taken, timeutil.Interval{
			Start: timeutil.ClockTime(start),
			End:   timeutil.ClockTime(end),
		})
	}
	return taken, rows.Err()
}

// BookExclusive performs the check-and-reserve as one transaction: any
// overlapping non-cancelled row fails the booking before the insert is
// attempted, and the appointments_no_overlap exclusion constraint backstops
// the same invariant inside the database.
func (r *PgRepository) BookExclusive(ctx context.Context, appt *Appointment) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var conflict bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1 AND day = $2 AND status <> 'cancelled'
			  AND start_minute < $4 AND end_minute > $3
		)
	`, appt.ProviderID, appt.Day, int(appt.Interval.Start), int(appt.Interval.End)).Scan(&conflict)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if conflict {
		return nil, ErrSlotTaken
	}

	id := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, day, start_minute, end_minute, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled')
		RETURNING `+appointmentColumns+`
	`, id, appt.ProviderID, appt.PatientID, appt.Day, int(appt.Interval.Start), int(appt.Interval.End))

	created, err := scanAppointment(row)
	if err != nil {
		return nil, asSlotTaken(err)
	}

	if _, err := r.outbox.Enqueue(ctx, tx, created.ID, events.TypeBooked, lifecyclePayload(created)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, asSlotTaken(fmt.Errorf("commit booking tx: %w", err))
	}
	return created, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = COALESCE($3, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentColumns+`
	`, id, to, reason, from)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	if _, err := r.outbox.Enqueue(ctx, tx, updated.ID, eventTypeFor(to), lifecyclePayload(updated)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) ListByProviderDay(ctx context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND day = $2
		ORDER BY start_minute
	`, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("list by provider day: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY day DESC, start_minute DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list by patient: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// asSlotTaken maps exclusion/unique violations from the storage constraint
// to the booking-race error.
func asSlotTaken(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505") {
		return ErrSlotTaken
	}
	return err
}

func eventTypeFor(to Status) string {
	switch to {
	case StatusConfirmed:
		return events.TypeConfirmed
	case StatusInProgress:
		return events.TypeStarted
	case StatusCompleted:
		return events.TypeCompleted
	case StatusCancelled:
		return events.TypeCancelled
	default:
		return events.TypeBooked
	}
}

type lifecycleEvent struct {
	ProviderID string  `json:"provider_id"`
	PatientID  string  `json:"patient_id"`
	Day        string  `json:"day"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	Status     string  `json:"status"`
	Reason     *string `json:"reason,omitempty"`
}

func lifecyclePayload(a *Appointment) lifecycleEvent {
	return lifecycleEvent{
		ProviderID: a.ProviderID.String(),
		PatientID:  a.PatientID.String(),
		Day:        timeutil.FormatDate(a.Day),
		Start:      a.Interval.Start.String(),
		End:        a.Interval.End.String(),
		Status:     string(a.Status),
		Reason:     a.CancelReason,
	}
}
