package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"idflow/internal/domain"
)

// Config tunes delivery retry behavior.
type Config struct {
	MaxAttempts   int           // per event, across all backoff rounds (default 6)
	BaseDelay     time.Duration // first retry delay (default 1s)
	MaxDelay      time.Duration // backoff cap (default 60s)
	RatePerSec    float64       // outbound request pacing (default 10/s)
	ShutdownGrace time.Duration // drain window before Close cancels deliveries (default 5s)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	return c
}

// Dispatcher delivers events to every configured sink, at least once each.
// Events for the same principal are delivered strictly in enqueue order;
// events for different principals may interleave arbitrarily.
type Dispatcher struct {
	sinks   []domain.NotificationSink
	outbox  domain.OutboxRepository
	logger  *slog.Logger
	cfg     Config
	limiter *rate.Limiter

	mu     sync.Mutex
	queues map[string][]domain.NotificationEvent // principal → FIFO
	active map[string]bool                       // principal has a drain goroutine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given sinks. With zero sinks
// every event is marked delivered immediately (delivery to "zero or more
// endpoints" is satisfied trivially).
func NewDispatcher(sinks []domain.NotificationSink, outbox domain.OutboxRepository, logger *slog.Logger, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		sinks:   sinks,
		outbox:  outbox,
		logger:  logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), int(cfg.RatePerSec)+1),
		queues:  make(map[string][]domain.NotificationEvent),
		active:  make(map[string]bool),
	}
}

// Start makes the dispatcher ready to accept events and re-queues every
// event the outbox still holds as pending, so deliveries interrupted by a
// shutdown resume here. The context bounds all in-flight deliveries.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)

	pending, err := d.outbox.ListPending(ctx)
	if err != nil {
		d.logger.Error("outbox recovery failed", "error", err)
		return
	}
	for _, event := range pending {
		d.queue(event)
	}
	if len(pending) > 0 {
		d.logger.Info("re-queued pending notifications", "count", len(pending))
	}
}

// Close lets in-flight delivery chains drain for the shutdown grace
// period, then cancels whatever is still blocked. Undelivered events stay
// pending in the outbox and are re-queued by the next Start.
func (d *Dispatcher) Close() {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGrace):
	}
	if d.cancel != nil {
		d.cancel()
	}
	<-done
}

// Enqueue persists the event as pending and queues it behind any earlier
// events for the same principal.
func (d *Dispatcher) Enqueue(ctx context.Context, event domain.NotificationEvent) error {
	if err := d.outbox.Enqueue(ctx, event); err != nil {
		return err
	}
	d.queue(event)
	return nil
}

// queue places an already-persisted event on its principal's FIFO and makes
// sure a drain goroutine is running for it.
func (d *Dispatcher) queue(event domain.NotificationEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queues[event.PrincipalID] = append(d.queues[event.PrincipalID], event)
	if !d.active[event.PrincipalID] {
		d.active[event.PrincipalID] = true
		d.wg.Add(1)
		go d.drain(event.PrincipalID)
	}
}

// drain delivers the principal's queue head-first. Only one drain goroutine
// exists per principal at a time, which is what guarantees FIFO ordering.
func (d *Dispatcher) drain(principalID string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[principalID]
		if len(queue) == 0 {
			d.active[principalID] = false
			d.mu.Unlock()
			return
		}
		event := queue[0]
		d.queues[principalID] = queue[1:]
		d.mu.Unlock()

		d.deliver(event)
	}
}

// deliver attempts one event against all sinks with exponential backoff.
// Sinks that have already accepted the event are not retried; redelivery to
// a sink can only happen across process restarts (at-least-once).
func (d *Dispatcher) deliver(event domain.NotificationEvent) {
	remaining := make([]domain.NotificationSink, len(d.sinks))
	copy(remaining, d.sinks)

	attempts := 0
	delay := d.cfg.BaseDelay
	for len(remaining) > 0 && attempts < d.cfg.MaxAttempts {
		if err := d.limiter.Wait(d.ctx); err != nil {
			return // shutting down; event stays pending for the next start
		}
		attempts++

		var failed []domain.NotificationSink
		for _, sink := range remaining {
			if err := sink.Deliver(d.ctx, event); err != nil {
				d.logger.Warn("notification delivery failed",
					"event", event.ID,
					"principal", event.PrincipalID,
					"endpoint", sink.Endpoint(),
					"attempt", attempts,
					"error", err,
				)
				failed = append(failed, sink)
			}
		}
		remaining = failed

		if len(remaining) > 0 && attempts < d.cfg.MaxAttempts {
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > d.cfg.MaxDelay {
				delay = d.cfg.MaxDelay
			}
		}
	}

	if len(remaining) > 0 {
		d.logger.Error("notification retries exhausted",
			"event", event.ID,
			"principal", event.PrincipalID,
			"attempts", attempts,
		)
		if err := d.outbox.MarkExhausted(context.Background(), event.ID, attempts); err != nil {
			d.logger.Error("outbox update failed", "event", event.ID, "error", err)
		}
		return
	}
	if err := d.outbox.MarkDelivered(context.Background(), event.ID, attempts); err != nil {
		d.logger.Error("outbox update failed", "event", event.ID, "error", err)
	}
}
