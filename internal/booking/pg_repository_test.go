package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/scheduling/internal/events"
	"github.com/openclinic/scheduling/internal/timeutil"
)

var appointmentCols = []string{
	"id", "provider_id", "patient_id", "day",
	"start_minute", "end_minute", "status", "cancel_reason",
	"created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock, events.NewStore(mock)), mock
}

func apptRow(id, providerID, patientID uuid.UUID, day time.Time, status Status) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(appointmentCols).
		AddRow(id, providerID, patientID, day, 540, 570, status, nil, now, now)
}

func TestBookExclusiveInsertsAndEnqueues(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID, patientID, apptID := uuid.New(), uuid.New(), uuid.New()
	day, _ := timeutil.ParseDate("2026-09-07")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(providerID, day, 540, 570).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), providerID, patientID, day, 540, 570).
		WillReturnRows(apptRow(apptID, providerID, patientID, day, StatusScheduled))
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs(pgxmock.AnyArg(), apptID, events.TypeBooked, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	created, err := repo.BookExclusive(context.Background(), &Appointment{
		ProviderID: providerID,
		PatientID:  patientID,
		Day:        day,
		Interval:   timeutil.Interval{Start: 540, End: 570},
	})
	require.NoError(t, err)
	assert.Equal(t, apptID, created.ID)
	assert.Equal(t, StatusScheduled, created.Status)
	assert.Equal(t, timeutil.ClockTime(540), created.Interval.Start)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookExclusiveOverlapConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID, patientID := uuid.New(), uuid.New()
	day, _ := timeutil.ParseDate("2026-09-07")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(providerID, day, 540, 570).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.BookExclusive(context.Background(), &Appointment{
		ProviderID: providerID,
		PatientID:  patientID,
		Day:        day,
		Interval:   timeutil.Interval{Start: 540, End: 570},
	})
	require.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookExclusiveConstraintBackstop(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID, patientID := uuid.New(), uuid.New()
	day, _ := timeutil.ParseDate("2026-09-07")

	// The overlap pre-check passed, but a racing insert landed first and the
	// exclusion constraint fires on our insert.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(providerID, day, 540, 570).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), providerID, patientID, day, 540, 570).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	mock.ExpectRollback()

	_, err := repo.BookExclusive(context.Background(), &Appointment{
		ProviderID: providerID,
		PatientID:  patientID,
		Day:        day,
		Interval:   timeutil.Interval{Start: 540, End: 570},
	})
	require.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusAppliesTransition(t *testing.T) {
	repo, mock := newMockRepo(t)
	apptID, providerID, patientID := uuid.New(), uuid.New(), uuid.New()
	day, _ := timeutil.ParseDate("2026-09-07")

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(apptID, StatusConfirmed, (*string)(nil), StatusScheduled).
		WillReturnRows(apptRow(apptID, providerID, patientID, day, StatusConfirmed))
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs(pgxmock.AnyArg(), apptID, events.TypeConfirmed, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	updated, err := repo.UpdateStatus(context.Background(), apptID, StatusScheduled, StatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusLostRace(t *testing.T) {
	repo, mock := newMockRepo(t)
	apptID := uuid.New()

	// No row matches the expected current status; a concurrent transition won.
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(apptID, StatusConfirmed, (*string)(nil), StatusScheduled).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.UpdateStatus(context.Background(), apptID, StatusScheduled, StatusConfirmed, nil)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppointmentByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	apptID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM appointments`).
		WithArgs(apptID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointmentByID(context.Background(), apptID)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveIntervals(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID := uuid.New()
	day, _ := timeutil.ParseDate("2026-09-07")

	mock.ExpectQuery(`SELECT start_minute, end_minute`).
		WithArgs(providerID, day).
		WillReturnRows(pgxmock.NewRows([]string{"start_minute", "end_minute"}).
			AddRow(540, 570).
			AddRow(600, 630))

	taken, err := repo.ActiveIntervals(context.Background(), providerID, day)
	require.NoError(t, err)
	assert.Equal(t, []timeutil.Interval{
		{Start: 540, End: 570},
		{Start: 600, End: 630},
	}, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}
