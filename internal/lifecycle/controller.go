// Package lifecycle runs the engine's reconciliation loop: one tick lists
// principals, derives expiration stages, detects status transitions,
// reconciles group memberships, and advances the federation bootstrap.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"idflow/internal/domain"
	"idflow/internal/expiration"
	"idflow/internal/federation"
	"idflow/internal/notify"
	"idflow/internal/reconcile"
	"idflow/internal/rules"
)

// TickSummary records the outcome of one reconciliation tick for the
// status API and UI.
type TickSummary struct {
	StartedAt    time.Time              `json:"started_at"`
	Duration     time.Duration          `json:"duration_ns"`
	Principals   int                    `json:"principals"`
	StageEvents  int                    `json:"stage_events"`
	StatusEvents int                    `json:"status_events"`
	Reconcile    reconcile.PassSummary  `json:"reconcile"`
	RuleErrors   []rules.LoadError      `json:"rule_errors,omitempty"`
	Federation   domain.FederationState `json:"federation,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Controller owns one organization's reconciliation loop. Ticks run on a
// cron schedule and on demand; only one tick runs at a time.
type Controller struct {
	directory  domain.DirectoryReader
	state      domain.StateRepository
	scheduler  *expiration.Scheduler
	reconciler *reconcile.Reconciler
	dispatcher *notify.Dispatcher
	negotiator *federation.Negotiator // nil when federation is not configured
	logger     *slog.Logger

	rulesPath string
	cron      *cron.Cron

	mu     sync.Mutex // serializes ticks and guards the fields below
	config *rules.Config
	last   *TickSummary
}

// NewController wires the engine's components into a loop. negotiator may
// be nil for deployments without a federation peer.
func NewController(
	dir domain.DirectoryReader,
	state domain.StateRepository,
	scheduler *expiration.Scheduler,
	reconciler *reconcile.Reconciler,
	dispatcher *notify.Dispatcher,
	negotiator *federation.Negotiator,
	rulesPath string,
	logger *slog.Logger,
) (*Controller, error) {
	cfg, err := rules.Load(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return &Controller{
		directory:  dir,
		state:      state,
		scheduler:  scheduler,
		reconciler: reconciler,
		dispatcher: dispatcher,
		negotiator: negotiator,
		logger:     logger.With("component", "lifecycle"),
		rulesPath:  rulesPath,
		cron:       cron.New(),
		config:     cfg,
	}, nil
}

// Start registers the tick schedule and starts the cron runner.
func (c *Controller) Start(schedule string) error {
	_, err := c.cron.AddFunc(schedule, func() {
		if _, err := c.Tick(context.Background()); err != nil {
			c.logger.Error("scheduled tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register tick schedule %q: %w", schedule, err)
	}
	c.cron.Start()
	c.logger.Info("lifecycle controller started", "schedule", schedule)
	return nil
}

// Stop halts the cron runner. In-flight ticks finish on their own.
func (c *Controller) Stop() {
	c.cron.Stop()
	c.logger.Info("lifecycle controller stopped")
}

// ReloadRules re-reads the rule configuration from disk. A file that fails
// structural validation is rejected and the previous rule set stays live;
// individual bad predicates only disable their own rules.
func (c *Controller) ReloadRules() ([]rules.LoadError, error) {
	cfg, err := rules.Load(c.rulesPath)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
	c.logger.Info("rules reloaded",
		"rules", len(cfg.Rules),
		"groups", len(cfg.Groups),
		"disabled", len(cfg.Set.Errors()),
	)
	return cfg.Set.Errors(), nil
}

// Rules returns the live rule configuration.
func (c *Controller) Rules() *rules.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// LastTick returns the most recent tick summary, or nil before the first
// tick completes.
func (c *Controller) LastTick() *TickSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Tick runs one full reconciliation pass. Safe to call concurrently; calls
// serialize behind the controller mutex.
func (c *Controller) Tick(ctx context.Context) (TickSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.config
	started := time.Now()
	summary := TickSummary{StartedAt: started.UTC(), RuleErrors: cfg.Set.Errors()}

	err := c.tick(ctx, cfg, &summary)
	summary.Duration = time.Since(started)
	if err != nil {
		summary.Error = err.Error()
	}
	if c.negotiator != nil {
		summary.Federation = c.negotiator.State()
	}
	c.last = &summary

	c.logger.Info("tick complete",
		"principals", summary.Principals,
		"added", summary.Reconcile.Added,
		"removed", summary.Reconcile.Removed,
		"skipped", summary.Reconcile.Skipped,
		"stage_events", summary.StageEvents,
		"status_events", summary.StatusEvents,
		"duration", summary.Duration,
	)
	return summary, err
}

func (c *Controller) tick(ctx context.Context, cfg *rules.Config, summary *TickSummary) error {
	principals, err := c.directory.ListPrincipals(ctx, domain.PrincipalFilter{})
	if err != nil {
		return fmt.Errorf("list principals: %w", err)
	}
	summary.Principals = len(principals)

	// Expiration stages first: the reconciler sees them as synthetic
	// attributes in the same pass.
	records, stageEvents, err := c.scheduler.Evaluate(ctx, principals, time.Now())
	if err != nil {
		return fmt.Errorf("evaluate expiration: %w", err)
	}
	stages := expiration.StageByPrincipal(records)

	statusEvents, err := c.detectStatusTransitions(ctx, principals)
	if err != nil {
		return fmt.Errorf("detect status transitions: %w", err)
	}

	for _, event := range append(stageEvents, statusEvents...) {
		if err := c.dispatcher.Enqueue(ctx, event); err != nil {
			c.logger.Error("enqueue notification failed", "event", event.ID, "error", err)
		}
	}
	summary.StageEvents = len(stageEvents)
	summary.StatusEvents = len(statusEvents)

	synthetic := func(p *domain.Principal) map[string]string {
		attrs := map[string]string{
			domain.AttrLifecycleStatus: string(p.Status),
		}
		if stage, ok := stages[p.ID]; ok {
			attrs[domain.AttrExpirationStage] = string(stage)
		}
		return attrs
	}
	summary.Reconcile = c.reconciler.ReconcileAll(ctx, principals, cfg.Set, synthetic, cfg.Groups)

	// Federation last: it is orthogonal to membership and must not delay
	// provisioning. Failures degrade, they never abort the tick.
	if c.negotiator != nil {
		if _, err := c.negotiator.Negotiate(ctx); err != nil {
			c.logger.Warn("federation negotiation failed", "error", err)
		}
	}
	return nil
}

// detectStatusTransitions compares each principal's directory status with
// the engine's persisted memory and emits joiner/mover/leaver events for
// the differences.
func (c *Controller) detectStatusTransitions(ctx context.Context, principals []domain.Principal) ([]domain.NotificationEvent, error) {
	var events []domain.NotificationEvent
	for i := range principals {
		p := &principals[i]

		prior := domain.LifecycleStatus("")
		st, err := c.state.Get(ctx, p.ID)
		switch {
		case domain.IsNotFound(err):
			// first sighting
		case err != nil:
			return nil, err
		default:
			prior = st.Status
		}

		if prior == p.Status {
			continue
		}
		if err := c.state.SetStatus(ctx, p.ID, p.Status); err != nil {
			return nil, err
		}
		events = append(events, domain.NotificationEvent{
			ID:          uuid.NewString(),
			PrincipalID: p.ID,
			Kind:        transitionKind(prior, p.Status),
			From:        string(prior),
			To:          string(p.Status),
			Timestamp:   time.Now().UTC(),
		})
	}
	return events, nil
}

// transitionKind classifies a status change in JML terms.
func transitionKind(from, to domain.LifecycleStatus) domain.TransitionKind {
	switch {
	case from == "" || to == domain.StatusOnboarding:
		return domain.TransitionJoiner
	case to == domain.StatusOffboarding:
		return domain.TransitionLeaver
	default:
		return domain.TransitionMover
	}
}
