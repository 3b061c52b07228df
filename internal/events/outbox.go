package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Lifecycle event types published on appointment state changes. External
// notifiers subscribe to these; the engine never sends email or SMS itself.
const (
	TypeBooked    = "appointment.booked"
	TypeConfirmed = "appointment.confirmed"
	TypeStarted   = "appointment.started"
	TypeCompleted = "appointment.completed"
	TypeCancelled = "appointment.cancelled"
)

// Entry is one pending or delivered outbox row.
type Entry struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Type          string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// Execer is satisfied by pgxpool.Pool and pgx.Tx; enqueueing inside the
// booking transaction keeps the event and the state change atomic.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB is the pool subset the store needs for polling.
type DB interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists lifecycle events for reliable, at-least-once delivery.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Enqueue writes one event row. Pass the surrounding transaction as exec to
// make the event part of the state change it describes.
func (s *Store) Enqueue(ctx context.Context, exec Execer, appointmentID uuid.UUID, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal event payload: %w", err)
	}

	id := uuid.New()
	_, err = exec.Exec(ctx, `
		INSERT INTO outbox (id, appointment_id, type, payload)
		VALUES ($1, $2, $3, $4)
	`, id, appointmentID, eventType, data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert outbox: %w", err)
	}
	return id, nil
}

func (s *Store) FetchPending(ctx context.Context, limit int32) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, appointment_id, type, payload, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry   Entry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &entry.AppointmentID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountPending reports the undelivered backlog. A growing count means the
// relay is down or falling behind; the readiness probe surfaces it.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM outbox
		WHERE delivered_at IS NULL
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}
	return n, nil
}

func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark event delivered: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
