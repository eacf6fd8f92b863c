package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-reservation/internal/apperr"
	"github.com/iliyamo/event-reservation/internal/asset"
	"github.com/iliyamo/event-reservation/internal/config"
	"github.com/iliyamo/event-reservation/internal/database"
	"github.com/iliyamo/event-reservation/internal/database/dbtest"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/queue"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/service"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// pngData sniffs as image/png.
var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	activity []queue.ActivityMessage
	cleanup  []queue.AssetCleanupMessage
}

func (n *recordingNotifier) PublishActivity(_ context.Context, msg queue.ActivityMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.activity = append(n.activity, msg)
	return nil
}

func (n *recordingNotifier) PublishAssetCleanup(_ context.Context, msg queue.AssetCleanupMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cleanup = append(n.cleanup, msg)
	return nil
}

func (n *recordingNotifier) activityTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.activity))
	for _, m := range n.activity {
		out = append(out, m.Type)
	}
	return out
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) InvalidateEvent(_ context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, eventID)
	return nil
}

// flakyTx fails the first n transactions with a transient error.
type flakyTx struct {
	inner service.Transactor
	n     atomic.Int32
	calls atomic.Int32
}

func (f *flakyTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls.Add(1)
	if f.n.Add(-1) >= 0 {
		return apperr.Transient(errors.New("deadlock found when trying to get lock"))
	}
	return f.inner.WithTx(ctx, fn)
}

type fixture struct {
	tx           *repository.Transactor
	events       *repository.EventRepo
	reservations *repository.ReservationRepo
	assets       *asset.MemoryStore
	clock        *testClock
	notify       *recordingNotifier
	cache        *recordingCache
	eventSvc     *service.EventService
	resSvc       *service.ReservationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return fixtureOn(t, dbtest.Open(t))
}

func fixtureOn(t *testing.T, db *database.DB, extra ...service.Option) *fixture {
	t.Helper()
	f := &fixture{
		tx:           repository.NewTransactor(db),
		events:       repository.NewEventRepo(db),
		reservations: repository.NewReservationRepo(db),
		assets:       asset.NewMemoryStore("http://assets.test"),
		clock:        &testClock{t: start},
		notify:       &recordingNotifier{},
		cache:        &recordingCache{},
	}
	opts := f.options(extra...)
	f.eventSvc = service.NewEventService(f.tx, f.events, f.reservations, f.assets, opts...)
	f.resSvc = service.NewReservationService(f.tx, f.events, f.reservations, opts...)
	return f
}

func (f *fixture) options(extra ...service.Option) []service.Option {
	return append([]service.Option{
		service.WithClock(f.clock),
		service.WithNotifier(f.notify),
		service.WithCache(f.cache),
		service.WithRetry(config.RetryConfig{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}),
	}, extra...)
}

func (f *fixture) createEvent(t *testing.T, owner string, capacity *int, in time.Duration) *model.Event {
	t.Helper()
	ev, err := f.eventSvc.Create(context.Background(), owner, service.CreateEventInput{
		Title:       "Gophers night",
		Location:    "Amsterdam",
		ScheduledAt: start.Add(in),
		Capacity:    capacity,
	})
	require.NoError(t, err)
	return ev
}

func (f *fixture) reservationCount(t *testing.T, eventID string) int {
	t.Helper()
	n, err := f.reservations.CountByEvent(context.Background(), eventID)
	require.NoError(t, err)
	return n
}

// blindReservations skips the pre-insert lookup so duplicate joins reach
// the unique index.
type blindReservations struct {
	*repository.ReservationRepo
}

func (blindReservations) Find(context.Context, string, string) (*model.Reservation, error) {
	return nil, nil
}

func intPtr(n int) *int { return &n }
