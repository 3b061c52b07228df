package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrBlockNotFound = errors.New("blocked period not found")

// Repository contains all DB interactions needed by the schedule service.
type Repository interface {
	GetWeek(ctx context.Context, providerID uuid.UUID) ([]WeekdayHours, error)
	GetDay(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) (*WeekdayHours, error)
	UpsertDay(ctx context.Context, day WeekdayHours) error

	InsertBlock(ctx context.Context, block *BlockedPeriod) error
	DeleteBlock(ctx context.Context, id uuid.UUID) error
	ListBlocks(ctx context.Context, providerID uuid.UUID, day time.Time) ([]BlockedPeriod, error)
}
