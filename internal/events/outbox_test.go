package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestEnqueueMarshalsPayload(t *testing.T) {
	store, mock := newMockStore(t)
	apptID := uuid.New()

	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs(pgxmock.AnyArg(), apptID, TypeBooked, []byte(`{"status":"scheduled"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.Enqueue(context.Background(), mock, apptID, TypeBooked,
		map[string]string{"status": "scheduled"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT count`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkDeliveredReportsMatch(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE outbox`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE outbox`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	first, err := store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, second, "an already-delivered entry must not match again")

	require.NoError(t, mock.ExpectationsWereMet())
}
