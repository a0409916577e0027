package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"idflow/internal/domain"
	"idflow/internal/rules"
)

// Config tunes the reconciler's concurrency and retry behavior.
type Config struct {
	Workers         int           // parallel principals per pass (default 8)
	MaxAttempts     int           // provisioner attempts per operation (default 3)
	RetryBase       time.Duration // first retry delay, doubled per attempt (default 200ms)
	ConflictRetries int           // re-read-and-diff rounds on ConflictError (default 2)
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	if c.ConflictRetries <= 0 {
		c.ConflictRetries = 2
	}
	return c
}

// Result is the outcome of reconciling one principal.
type Result struct {
	PrincipalID string
	Added       int
	Removed     int
	Skipped     int // operations that exhausted their retry budget
}

// PassSummary aggregates one reconciliation pass over all principals.
type PassSummary struct {
	Principals int `json:"principals"`
	Added      int `json:"added"`
	Removed    int `json:"removed"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"` // principals whose actual state could not be read
}

// Reconciler diffs desired vs. actual membership and applies the difference
// through the provisioning port. All state it needs is passed per call; the
// reconciler itself holds no rule or principal state.
type Reconciler struct {
	prov     domain.Provisioner
	failures domain.FailureRepository
	logger   *slog.Logger
	cfg      Config
}

// New creates a reconciler. Zero Config fields take defaults.
func New(prov domain.Provisioner, failures domain.FailureRepository, logger *slog.Logger, cfg Config) *Reconciler {
	return &Reconciler{prov: prov, failures: failures, logger: logger, cfg: cfg.withDefaults()}
}

// ReconcileAll runs one pass over the given principals on a bounded worker
// pool. Principals are independent: a failure for one never blocks the
// others, and there is no ordering guarantee between them.
func (r *Reconciler) ReconcileAll(ctx context.Context, principals []domain.Principal, set *rules.Set, synthetic func(p *domain.Principal) map[string]string, groups map[string]domain.Group) PassSummary {
	var mu sync.Mutex
	summary := PassSummary{Principals: len(principals)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i := range principals {
		p := &principals[i]
		g.Go(func() error {
			res, err := r.ReconcilePrincipal(gctx, p, set, synthetic(p), groups)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Errors++
				r.logger.Warn("reconcile principal failed",
					"principal", p.ID,
					"error", err,
				)
				return nil // isolate: other principals continue
			}
			summary.Added += res.Added
			summary.Removed += res.Removed
			summary.Skipped += res.Skipped
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

// ReconcilePrincipal converges one principal. Actual state is re-read
// immediately before each diff; a ConflictError from the provisioner
// triggers a bounded re-read-and-retry round rather than any global lock.
func (r *Reconciler) ReconcilePrincipal(ctx context.Context, p *domain.Principal, set *rules.Set, synthetic map[string]string, groups map[string]domain.Group) (Result, error) {
	res := Result{PrincipalID: p.ID}
	desired := set.Evaluate(p, synthetic)

	for round := 0; ; round++ {
		actual, err := r.prov.ListMemberships(ctx, p.ID)
		if err != nil {
			return res, err
		}

		plan := Diff(p.ID, desired, actual, groups)
		if !plan.HasChanges() {
			return res, nil // converged: zero operations
		}

		conflicted := false
		for _, action := range plan.Actions {
			err := r.applyWithRetry(ctx, action)
			switch {
			case err == nil:
				if action.Operation == OpAdd {
					res.Added++
				} else {
					res.Removed++
				}
			case isConflict(err):
				conflicted = true
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return res, err
			default:
				res.Skipped++
				r.reportFailure(ctx, action, err)
			}
			if conflicted {
				break
			}
		}

		if !conflicted {
			return res, nil
		}
		if round >= r.cfg.ConflictRetries {
			r.logger.Warn("conflict retries exhausted; deferring to next pass",
				"principal", p.ID,
			)
			return res, nil
		}
	}
}

// applyWithRetry issues a single membership operation with bounded
// exponential backoff. Conflicts are returned immediately: the caller
// handles them by re-reading actual state.
func (r *Reconciler) applyWithRetry(ctx context.Context, action Action) error {
	var lastErr error
	delay := r.cfg.RetryBase

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		var err error
		switch action.Operation {
		case OpAdd:
			err = r.prov.AddMembership(ctx, action.PrincipalID, action.GroupID, action.SourceTag)
		case OpRemove:
			err = r.prov.RemoveMembership(ctx, action.PrincipalID, action.GroupID, action.SourceTag)
		}
		if err == nil {
			return nil
		}
		if isConflict(err) {
			return err
		}
		lastErr = err

		if attempt < r.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return lastErr
}

// reportFailure records a retry-exhausted operation in the operator-visible
// failure log. The pair is skipped until the next full pass.
func (r *Reconciler) reportFailure(ctx context.Context, action Action, cause error) {
	r.logger.Warn("membership operation exhausted retries",
		"principal", action.PrincipalID,
		"group", action.GroupID,
		"op", action.Operation,
		"error", cause,
	)
	rec := domain.FailureRecord{
		PrincipalID: action.PrincipalID,
		GroupID:     action.GroupID,
		Operation:   string(action.Operation),
		Error:       cause.Error(),
		At:          time.Now().UTC(),
	}
	if err := r.failures.Record(ctx, rec); err != nil {
		r.logger.Error("failure log write failed", "error", err)
	}
}

func isConflict(err error) bool {
	var conflict *domain.ConflictError
	return errors.As(err, &conflict)
}
