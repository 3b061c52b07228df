package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	redisclient "github.com/openclinic/scheduling/internal/redis"
	"github.com/openclinic/scheduling/internal/schedule"
	"github.com/openclinic/scheduling/internal/timeutil"
)

// memLedger is an in-memory Repository. BookExclusive holds the mutex for
// the whole check-and-insert, mirroring the transactional guarantee of the
// real repository.
type memLedger struct {
	mu           sync.Mutex
	providers    map[uuid.UUID]Provider
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	lastLimit    int
}

func newMemLedger() *memLedger {
	return &memLedger{
		providers:    make(map[uuid.UUID]Provider),
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *memLedger) addProvider() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.providers[id] = Provider{ID: id, Name: "Dr. Test"}
	return id
}

func (m *memLedger) addPatient() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.patients[id] = Patient{ID: id, Name: "Pat Test"}
	return id
}

func (m *memLedger) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.providers[id]; ok {
		return &p, nil
	}
	return nil, ErrProviderNotFound
}

func (m *memLedger) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.patients[id]; ok {
		return &p, nil
	}
	return nil, ErrPatientNotFound
}

func (m *memLedger) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.appointments[id]; ok {
		return &a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *memLedger) ActiveIntervals(_ context.Context, providerID uuid.UUID, day time.Time) ([]timeutil.Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []timeutil.Interval
	for _, a := range m.appointments {
		if a.ProviderID == providerID && a.Day.Equal(day) && a.Status != StatusCancelled {
			out = append(out, a.Interval)
		}
	}
	return out, nil
}

func (m *memLedger) BookExclusive(_ context.Context, appt *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appointments {
		if existing.ProviderID == appt.ProviderID &&
			existing.Day.Equal(appt.Day) &&
			existing.Status != StatusCancelled &&
			existing.Interval.Overlaps(appt.Interval) {
			return nil, ErrSlotTaken
		}
	}
	stored := *appt
	stored.ID = uuid.New()
	stored.Status = StatusScheduled
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.appointments[stored.ID] = stored
	return &stored, nil
}

func (m *memLedger) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, reason *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if reason != nil {
		a.CancelReason = reason
	}
	a.UpdatedAt = time.Now()
	m.appointments[id] = a
	return &a, nil
}

func (m *memLedger) ListByProviderDay(_ context.Context, providerID uuid.UUID, day time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.ProviderID == providerID && a.Day.Equal(day) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memLedger) ListByPatient(_ context.Context, patientID uuid.UUID, limit, _ int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

// openHours is a canned HoursChecker.
type openHours struct {
	open bool
}

func (h openHours) WithinWorkingHours(context.Context, uuid.UUID, time.Time, timeutil.Interval) (bool, error) {
	return h.open, nil
}

// passLocker runs the callback without any locking, for tests where the
// repository alone provides exclusion.
type passLocker struct{}

func (passLocker) WithDayLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func iv(start, end timeutil.ClockTime) timeutil.Interval {
	return timeutil.Interval{Start: start, End: end}
}

func newBookingService(repo *memLedger, locker redisclient.DayLocker) *Service {
	return NewService(repo, openHours{open: true}, locker, nil, zap.NewNop())
}

func TestBookHappyPath(t *testing.T) {
	repo := newMemLedger()
	svc := newBookingService(repo, passLocker{})
	providerID, patientID := repo.addProvider(), repo.addPatient()
	day, _ := timeutil.ParseDate("2026-09-07")

	appt, err := svc.Book(context.Background(), providerID, patientID, day, iv(9*60, 9*60+30))
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, providerID, appt.ProviderID)
	assert.Equal(t, patientID, appt.PatientID)
	assert.NotEqual(t, uuid.Nil, appt.ID)
}

func TestBookValidation(t *testing.T) {
	repo := newMemLedger()
	providerID, patientID := repo.addProvider(), repo.addPatient()
	day, _ := timeutil.ParseDate("2026-09-07")
	ctx := context.Background()

	t.Run("invalid interval", func(t *testing.T) {
		svc := newBookingService(repo, passLocker{})
		_, err := svc.Book(ctx, providerID, patientID, day, iv(10*60, 9*60))
		require.ErrorIs(t, err, schedule.ErrInvalidInterval)
	})

	t.Run("unknown provider", func(t *testing.T) {
		svc := newBookingService(repo, passLocker{})
		_, err := svc.Book(ctx, uuid.New(), patientID, day, iv(9*60, 9*60+30))
		require.ErrorIs(t, err, ErrProviderNotFound)
	})

	t.Run("unknown patient", func(t *testing.T) {
		svc := newBookingService(repo, passLocker{})
		_, err := svc.Book(ctx, providerID, uuid.New(), day, iv(9*60, 9*60+30))
		require.ErrorIs(t, err, ErrPatientNotFound)
	})

	t.Run("outside working hours", func(t *testing.T) {
		svc := NewService(repo, openHours{open: false}, passLocker{}, nil, zap.NewNop())
		_, err := svc.Book(ctx, providerID, patientID, day, iv(9*60, 9*60+30))
		require.ErrorIs(t, err, ErrOutsideWorkingHours)
	})
}

func TestBookOverlapRejected(t *testing.T) {
	repo := newMemLedger()
	svc := newBookingService(repo, passLocker{})
	providerID, patientID := repo.addProvider(), repo.addPatient()
	day, _ := timeutil.ParseDate("2026-09-07")
	ctx := context.Background()

	_, err := svc.Book(ctx, providerID, patientID, day, iv(9*60, 10*60))
	require.NoError(t, err)

	// Partial overlap from either side loses.
	_, err = svc.Book(ctx, providerID, patientID, day, iv(9*60+30, 10*60+30))
	require.ErrorIs(t, err, ErrSlotTaken)
	_, err = svc.Book(ctx, providerID, patientID, day, iv(8*60+30, 9*60+30))
	require.ErrorIs(t, err, ErrSlotTaken)

	// Back-to-back is fine: intervals are half-open.
	_, err = svc.Book(ctx, providerID, patientID, day, iv(10*60, 10*60+30))
	require.NoError(t, err)

	// A different day never conflicts.
	tuesday, _ := timeutil.ParseDate("2026-09-08")
	_, err = svc.Book(ctx, providerID, patientID, tuesday, iv(9*60, 10*60))
	require.NoError(t, err)
}

func TestBookConcurrentSingleWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemLedger()
	locker := redisclient.NewRedisDayLocker(client, 2*time.Second)
	svc := newBookingService(repo, locker)

	providerID := repo.addProvider()
	day, _ := timeutil.ParseDate("2026-09-07")

	const attempts = 16
	patients := make([]uuid.UUID, attempts)
	for i := range patients {
		patients[i] = repo.addPatient()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		booked    int
		conflicts int
	)
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := svc.Book(context.Background(), providerID, patientID, day, iv(9*60, 9*60+30))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			default:
				require.ErrorIs(t, err, ErrSlotTaken)
				conflicts++
			}
		}(patients[i])
	}

	close(start)
	wg.Wait()

	assert.Equal(t, 1, booked, "exactly one attempt must win")
	assert.Equal(t, attempts-1, conflicts)

	active, err := repo.ActiveIntervals(context.Background(), providerID, day)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestLifecycleTransitions(t *testing.T) {
	repo := newMemLedger()
	svc := newBookingService(repo, passLocker{})
	providerID, patientID := repo.addProvider(), repo.addPatient()
	day, _ := timeutil.ParseDate("2026-09-07")
	ctx := context.Background()

	appt, err := svc.Book(ctx, providerID, patientID, day, iv(9*60, 9*60+30))
	require.NoError(t, err)

	// Cannot skip ahead.
	_, err = svc.Complete(ctx, appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Start(ctx, appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	confirmed, err := svc.Confirm(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	started, err := svc.Start(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)

	completed, err := svc.Complete(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Terminal: nothing moves a completed appointment.
	_, err = svc.Cancel(ctx, appt.ID, "patient request")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Confirm(ctx, appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelRequiresReason(t *testing.T) {
	repo := newMemLedger()
	svc := newBookingService(repo, passLocker{})
	providerID, patientID := repo.addProvider(), repo.addPatient()
	day, _ := timeutil.ParseDate("2026-09-07")
	ctx := context.Background()

	appt, err := svc.Book(ctx, providerID, patientID, day, iv(9*60, 9*60+30))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, appt.ID, "")
	require.ErrorIs(t, err, ErrReasonRequired)

	cancelled, err := svc.Cancel(ctx, appt.ID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "patient request", *cancelled.CancelReason)
}

func TestCancelFreesSlot(t *testing.T) {
	repo := newMemLedger()
	svc := newBookingService(repo, passLocker{})
	providerID := repo.addProvider()
	first, second := repo.addPatient(), repo.addPatient()
	day, _ := timeutil.ParseDate("2026-09-07")
	ctx := context.Background()

	appt, err := svc.Book(ctx, providerID, first, day, iv(9*60, 9*60+30))
	require.NoError(t, err)

	_, err = svc.Book(ctx, providerID, second, day, iv(9*60, 9*60+30))
	require.ErrorIs(t, err, ErrSlotTaken)

	_, err = svc.Cancel(ctx, appt.ID, "rescheduling")
	require.NoError(t, err)

	rebooked, err := svc.Book(ctx, providerID, second, day, iv(9*60, 9*60+30))
	require.NoError(t, err)
	assert.Equal(t, second, rebooked.PatientID)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	repo := newMemLedger()
	svc := newBookingService(repo, passLocker{})

	_, err := svc.Confirm(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestListByPatientClampsLimit(t *testing.T) {
	repo := newMemLedger()
	svc := newBookingService(repo, passLocker{})
	patientID := repo.addPatient()
	ctx := context.Background()

	_, err := svc.ListByPatient(ctx, patientID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, repo.lastLimit)

	_, err = svc.ListByPatient(ctx, patientID, 500, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, repo.lastLimit)
}
