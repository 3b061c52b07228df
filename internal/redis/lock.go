package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openclinic/scheduling/internal/timeutil"
)

var ErrLockNotAcquired = errors.New("provider day lock not acquired")

// DayLocker guards the booking critical section. The exclusion unit is one
// provider's calendar day: two bookings for the same provider-day serialize,
// bookings for different days never contend.
type DayLocker interface {
	WithDayLock(ctx context.Context, providerID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// A held lock is retried a few times before giving up. The day is a wider
// exclusion unit than the slot, so two non-overlapping bookings on the same
// day briefly contend; a short wait lets the second one through instead of
// bouncing it with a conflict.
const (
	lockAttempts   = 4
	lockRetryDelay = 25 * time.Millisecond
)

// NewRedisDayLocker creates a locker backed by a per provider-day Redis key.
func NewRedisDayLocker(client *redis.Client, ttl time.Duration) DayLocker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisDayLocker) WithDayLock(ctx context.Context, providerID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:day:%s:%s", providerID, timeutil.FormatDate(day))
	token := uuid.NewString()

	acquired := false
	for attempt := 0; attempt < lockAttempts; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire day lock: %w", err)
		}
		if ok {
			acquired = true
			break
		}
		if attempt == lockAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	if !acquired {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// unlockScript releases the lock only if the token still matches, so a lock
// that expired and was re-acquired by another booking is never deleted.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release day lock: %w", err)
	}
	return nil
}
