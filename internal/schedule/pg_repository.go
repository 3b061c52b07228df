package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openclinic/scheduling/internal/timeutil"
)

// DB is the subset of pgxpool.Pool the repository uses. Narrowing it keeps
// the repository mockable with pgxmock.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

func scanWeekdayHours(row pgx.Row) (*WeekdayHours, error) {
	var (
		d        WeekdayHours
		weekday  int16
		rawSpans []byte
	)

	err := row.Scan(
		&d.ProviderID,
		&weekday,
		&d.Enabled,
		&rawSpans,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Weekday = time.Weekday(weekday)
	if err := json.Unmarshal(rawSpans, &d.Intervals); err != nil {
		return nil, fmt.Errorf("decode intervals: %w", err)
	}
	return &d, nil
}

func scanBlock(row pgx.Row) (*BlockedPeriod, error) {
	var (
		b      BlockedPeriod
		reason *string
		start  int
		end    int
	)

	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.Day,
		&start,
		&end,
		&reason,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}

	b.Interval.Start = timeutil.ClockTime(start)
	b.Interval.End = timeutil.ClockTime(end)
	b.Reason = reason
	return &b, nil
}

func (r *PgRepository) GetWeek(ctx context.Context, providerID uuid.UUID) ([]WeekdayHours, error) {
	rows, err := r.db.Query(ctx, `
		SELECT provider_id, weekday, enabled, intervals, updated_at
		FROM weekly_availability
		WHERE provider_id = $1
		ORDER BY weekday
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("list weekly availability: %w", err)
	}
	defer rows.Close()

	var week []WeekdayHours
	for rows.Next() {
		d, err := scanWeekdayHours(rows)
		if err != nil {
			return nil, err
		}
		week = append(week, *d)
	}
	return week, rows.Err()
}

func (r *PgRepository) GetDay(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) (*WeekdayHours, error) {
	row := r.db.QueryRow(ctx, `
		SELECT provider_id, weekday, enabled, intervals, updated_at
		FROM weekly_availability
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, int16(weekday))

	d, err := scanWeekdayHours(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get weekday hours: %w", err)
	}
	return d, nil
}

// UpsertDay overwrites one weekday wholesale; weekly hours are
// single-owner, last-writer-wins records.
func (r *PgRepository) UpsertDay(ctx context.Context, day WeekdayHours) error {
	spans, err := json.Marshal(day.Intervals)
	if err != nil {
		return fmt.Errorf("encode intervals: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO weekly_availability (provider_id, weekday, enabled, intervals, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (provider_id, weekday)
		DO UPDATE SET enabled = EXCLUDED.enabled, intervals = EXCLUDED.intervals, updated_at = now()
	`, day.ProviderID, int16(day.Weekday), day.Enabled, spans)
	if err != nil {
		return fmt.Errorf("upsert weekday hours: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertBlock(ctx context.Context, block *BlockedPeriod) error {
	if block.ID == uuid.Nil {
		block.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO blocked_periods (id, provider_id, day, start_minute, end_minute, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, block.ID, block.ProviderID, block.Day, int(block.Interval.Start), int(block.Interval.End), block.Reason)

	if err := row.Scan(&block.CreatedAt); err != nil {
		return fmt.Errorf("insert blocked period: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM blocked_periods
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete blocked period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *PgRepository) ListBlocks(ctx context.Context, providerID uuid.UUID, day time.Time) ([]BlockedPeriod, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, provider_id, day, start_minute, end_minute, reason, created_at
		FROM blocked_periods
		WHERE provider_id = $1 AND day = $2
		ORDER BY start_minute
	`, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("list blocked periods: %w", err)
	}
	defer rows.Close()

	var blocks []BlockedPeriod
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}
