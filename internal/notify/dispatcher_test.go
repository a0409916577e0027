package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idflow/internal/domain"
	"idflow/internal/testutil"
)

var testLogger = slog.New(slog.DiscardHandler)

// recordingSink captures delivery order and fails the first N attempts per
// event when failFirst is set.
type recordingSink struct {
	mu        sync.Mutex
	delivered []domain.NotificationEvent
	failFirst int
	attempts  map[string]int
}

func newRecordingSink(failFirst int) *recordingSink {
	return &recordingSink{failFirst: failFirst, attempts: make(map[string]int)}
}

func (s *recordingSink) Endpoint() string { return "test://sink" }

func (s *recordingSink) Deliver(_ context.Context, event domain.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[event.ID]++
	if s.attempts[event.ID] <= s.failFirst {
		return errors.New("injected failure")
	}
	s.delivered = append(s.delivered, event)
	return nil
}

func (s *recordingSink) deliveredIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.delivered))
	for i, e := range s.delivered {
		ids[i] = e.ID
	}
	return ids
}

func event(id, principal string) domain.NotificationEvent {
	return domain.NotificationEvent{
		ID:          id,
		PrincipalID: principal,
		Kind:        domain.TransitionJoiner,
		Timestamp:   time.Now().UTC(),
	}
}

func fastConfig() Config {
	return Config{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		RatePerSec:    10000,
		ShutdownGrace: 50 * time.Millisecond,
	}
}

func TestDispatcher_DeliversAndMarksOutbox(t *testing.T) {
	sink := newRecordingSink(0)
	outbox := testutil.NewMemOutbox()
	d := NewDispatcher([]domain.NotificationSink{sink}, outbox, testLogger, fastConfig())
	d.Start(context.Background())
	defer d.Close()

	require.NoError(t, d.Enqueue(context.Background(), event("e1", "u1")))
	d.Close()

	assert.Equal(t, []string{"e1"}, sink.deliveredIDs())
	pending, _ := outbox.ListPending(context.Background())
	assert.Empty(t, pending)
}

func TestDispatcher_FIFOPerPrincipal(t *testing.T) {
	// First event fails once; the second must still come after it.
	sink := newRecordingSink(0)
	outbox := testutil.NewMemOutbox()
	d := NewDispatcher([]domain.NotificationSink{sink}, outbox, testLogger, fastConfig())
	d.Start(context.Background())

	sink.mu.Lock()
	sink.attempts["t1"] = -1 // t1 fails its first attempt, then succeeds
	sink.mu.Unlock()

	ctx := context.Background()
	require.NoError(t, d.Enqueue(ctx, event("t1", "u1")))
	require.NoError(t, d.Enqueue(ctx, event("t2", "u1")))
	require.NoError(t, d.Enqueue(ctx, event("x1", "u2")))
	d.Close()

	ids := sink.deliveredIDs()
	idxT1, idxT2 := indexOf(ids, "t1"), indexOf(ids, "t2")
	require.GreaterOrEqual(t, idxT1, 0)
	require.GreaterOrEqual(t, idxT2, 0)
	assert.Less(t, idxT1, idxT2, "t2 delivered before t1")
}

func TestDispatcher_RetriesThenDelivers(t *testing.T) {
	sink := newRecordingSink(2) // fail twice, succeed on third attempt
	outbox := testutil.NewMemOutbox()
	d := NewDispatcher([]domain.NotificationSink{sink}, outbox, testLogger, fastConfig())
	d.Start(context.Background())

	require.NoError(t, d.Enqueue(context.Background(), event("e1", "u1")))
	d.Close()

	assert.Equal(t, []string{"e1"}, sink.deliveredIDs())
}

func TestDispatcher_ExhaustionIsSurfacedNotDropped(t *testing.T) {
	sink := newRecordingSink(100) // never succeeds
	outbox := testutil.NewMemOutbox()
	d := NewDispatcher([]domain.NotificationSink{sink}, outbox, testLogger, fastConfig())
	d.Start(context.Background())

	require.NoError(t, d.Enqueue(context.Background(), event("e1", "u1")))
	d.Close()

	exhausted, err := outbox.ListExhausted(context.Background())
	require.NoError(t, err)
	require.Len(t, exhausted, 1)
	assert.Equal(t, "e1", exhausted[0].ID)
	assert.Equal(t, 3, exhausted[0].Attempts)
}

func TestDispatcher_ZeroSinksDeliversTrivially(t *testing.T) {
	outbox := testutil.NewMemOutbox()
	d := NewDispatcher(nil, outbox, testLogger, fastConfig())
	d.Start(context.Background())

	require.NoError(t, d.Enqueue(context.Background(), event("e1", "u1")))
	d.Close()

	pending, _ := outbox.ListPending(context.Background())
	assert.Empty(t, pending)
	exhausted, _ := outbox.ListExhausted(context.Background())
	assert.Empty(t, exhausted)
}

func TestDispatcher_SecondSinkFailureDoesNotRedeliverFirst(t *testing.T) {
	good := newRecordingSink(0)
	flaky := newRecordingSink(1)
	outbox := testutil.NewMemOutbox()
	d := NewDispatcher([]domain.NotificationSink{good, flaky}, outbox, testLogger, fastConfig())
	d.Start(context.Background())

	require.NoError(t, d.Enqueue(context.Background(), event("e1", "u1")))
	d.Close()

	// The good sink saw the event exactly once despite the retry round.
	good.mu.Lock()
	assert.Equal(t, 1, good.attempts["e1"])
	good.mu.Unlock()
	assert.Equal(t, []string{"e1"}, flaky.deliveredIDs())
}

// stallingSink blocks every delivery until its context is cancelled, the
// way a hung endpoint would during a shutdown.
type stallingSink struct{}

func (stallingSink) Endpoint() string { return "test://stalled" }

func (stallingSink) Deliver(ctx context.Context, _ domain.NotificationEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcher_RedeliversPendingAfterRestart(t *testing.T) {
	outbox := testutil.NewMemOutbox()

	// First process: the sink hangs and the dispatcher shuts down with the
	// event still in flight. It must stay pending, not vanish.
	d1 := NewDispatcher([]domain.NotificationSink{stallingSink{}}, outbox, testLogger, fastConfig())
	d1.Start(context.Background())
	require.NoError(t, d1.Enqueue(context.Background(), event("e1", "u1")))
	d1.Close()

	pending, err := outbox.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Second process over the same outbox: Start re-queues the pending
	// event and delivery completes.
	sink := newRecordingSink(0)
	d2 := NewDispatcher([]domain.NotificationSink{sink}, outbox, testLogger, fastConfig())
	d2.Start(context.Background())
	d2.Close()

	assert.Equal(t, []string{"e1"}, sink.deliveredIDs())
	pending, err = outbox.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
