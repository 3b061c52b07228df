package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openclinic/scheduling/internal/timeutil"
)

var (
	ErrInvalidInterval      = errors.New("interval start must be before its end")
	ErrOverlappingIntervals = errors.New("intervals overlap")
	ErrInvalidDuration      = errors.New("slot duration must be positive")
)

// Service owns weekly availability and the dated exception overlay. The two
// are kept as independent records and only combined at read time, so block
// edits take effect on the next generation call without any invalidation.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// WeekFor returns all seven weekdays for a provider, Sunday first. Weekdays
// without a stored row come back disabled and empty.
func (s *Service) WeekFor(ctx context.Context, providerID uuid.UUID) ([]WeekdayHours, error) {
	stored, err := s.repo.GetWeek(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load week: %w", err)
	}

	byWeekday := make(map[time.Weekday]WeekdayHours, len(stored))
	for _, d := range stored {
		byWeekday[d.Weekday] = d
	}

	week := make([]WeekdayHours, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if d, ok := byWeekday[wd]; ok {
			week = append(week, d)
			continue
		}
		week = append(week, WeekdayHours{ProviderID: providerID, Weekday: wd})
	}
	return week, nil
}

// SetDay overwrites one weekday wholesale. Intervals are sorted and must be
// pairwise non-overlapping. Enabling a day with no intervals seeds the
// default office hours; disabling a day with no intervals retains whatever
// was stored before, so the hours survive a quick off/on toggle.
func (s *Service) SetDay(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, enabled bool, intervals []timeutil.Interval) (*WeekdayHours, error) {
	normalized, err := normalizeIntervals(intervals)
	if err != nil {
		return nil, err
	}

	if len(normalized) == 0 {
		if enabled {
			normalized = []timeutil.Interval{DefaultInterval}
		} else {
			existing, err := s.repo.GetDay(ctx, providerID, weekday)
			if err != nil {
				return nil, fmt.Errorf("load weekday: %w", err)
			}
			if existing != nil {
				normalized = existing.Intervals
			}
		}
	}

	day := WeekdayHours{
		ProviderID: providerID,
		Weekday:    weekday,
		Enabled:    enabled,
		Intervals:  normalized,
	}
	if err := s.repo.UpsertDay(ctx, day); err != nil {
		return nil, fmt.Errorf("store weekday: %w", err)
	}

	s.logger.Info("weekday hours updated",
		zap.String("provider_id", providerID.String()),
		zap.Stringer("weekday", weekday),
		zap.Bool("enabled", enabled),
		zap.Int("intervals", len(normalized)),
	)
	return &day, nil
}

// EnsureDefaultWeek stores the default week for a provider that has no
// availability rows yet. Existing rows are left untouched.
func (s *Service) EnsureDefaultWeek(ctx context.Context, providerID uuid.UUID) error {
	stored, err := s.repo.GetWeek(ctx, providerID)
	if err != nil {
		return fmt.Errorf("load week: %w", err)
	}
	if len(stored) > 0 {
		return nil
	}
	for _, d := range DefaultWeek(providerID) {
		if err := s.repo.UpsertDay(ctx, d); err != nil {
			return fmt.Errorf("seed weekday %s: %w", d.Weekday, err)
		}
	}
	return nil
}

// OpenIntervals returns the recurring hours for one weekday, sorted
// ascending. A disabled or unknown day yields nothing, regardless of any
// retained interval data.
func (s *Service) OpenIntervals(ctx context.Context, providerID uuid.UUID, weekday time.Weekday) ([]timeutil.Interval, error) {
	day, err := s.repo.GetDay(ctx, providerID, weekday)
	if err != nil {
		return nil, fmt.Errorf("load weekday: %w", err)
	}
	if day == nil || !day.Enabled {
		return nil, nil
	}
	return day.Intervals, nil
}

// AddBlock records a dated exception. Overlap between blocks is allowed,
// they only ever subtract from availability.
func (s *Service) AddBlock(ctx context.Context, providerID uuid.UUID, day time.Time, interval timeutil.Interval, reason string) (*BlockedPeriod, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	block := &BlockedPeriod{
		ProviderID: providerID,
		Day:        timeutil.DateOnly(day),
		Interval:   interval,
	}
	if reason != "" {
		block.Reason = &reason
	}

	if err := s.repo.InsertBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("store blocked period: %w", err)
	}

	s.logger.Info("blocked period added",
		zap.String("provider_id", providerID.String()),
		zap.String("day", timeutil.FormatDate(block.Day)),
		zap.Stringer("interval", interval),
	)
	return block, nil
}

func (s *Service) RemoveBlock(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteBlock(ctx, id); err != nil {
		return err
	}
	s.logger.Info("blocked period removed", zap.String("block_id", id.String()))
	return nil
}

func (s *Service) BlocksOn(ctx context.Context, providerID uuid.UUID, day time.Time) ([]BlockedPeriod, error) {
	return s.repo.ListBlocks(ctx, providerID, timeutil.DateOnly(day))
}

// openMinusBlocks resolves the bookable time remaining on a date: weekly
// hours for that weekday with every block for the date subtracted.
func (s *Service) openMinusBlocks(ctx context.Context, providerID uuid.UUID, day time.Time) ([]timeutil.Interval, error) {
	day = timeutil.DateOnly(day)

	open, err := s.OpenIntervals(ctx, providerID, day.Weekday())
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	blocks, err := s.repo.ListBlocks(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("load blocked periods: %w", err)
	}

	remaining := append([]timeutil.Interval(nil), open...)
	for _, block := range blocks {
		var next []timeutil.Interval
		for _, iv := range remaining {
			next = append(next, iv.Subtract(block.Interval)...)
		}
		remaining = next
	}
	return remaining, nil
}

// WithinWorkingHours reports whether the interval lies fully inside the
// provider's remaining open time on that date.
func (s *Service) WithinWorkingHours(ctx context.Context, providerID uuid.UUID, day time.Time, interval timeutil.Interval) (bool, error) {
	remaining, err := s.openMinusBlocks(ctx, providerID, day)
	if err != nil {
		return false, err
	}
	for _, iv := range remaining {
		if iv.Contains(interval) {
			return true, nil
		}
	}
	return false, nil
}

// normalizeIntervals sorts intervals ascending by start and validates each
// one, rejecting any overlapping pair. Touching intervals are fine.
func normalizeIntervals(intervals []timeutil.Interval) ([]timeutil.Interval, error) {
	if len(intervals) == 0 {
		return nil, nil
	}

	out := append([]timeutil.Interval(nil), intervals...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	for i, iv := range out {
		if !iv.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, iv)
		}
		if i > 0 && out[i-1].End > iv.Start {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingIntervals, out[i-1], iv)
		}
	}
	return out, nil
}
