// Package expiration derives contract-expiration stages from principal
// end-date attributes. Stages are exposed to the rule evaluator as the
// synthetic expirationStage attribute, keeping date arithmetic out of the
// predicate language.
package expiration

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"idflow/internal/domain"
)

// Default thresholds, in days before the contract end date.
const (
	DefaultWarningDays     = 30
	DefaultFinalNoticeDays = 7
)

// endDateLayouts are the accepted formats for the contractEndDate attribute.
var endDateLayouts = []string{"2006-01-02", time.RFC3339}

// ComputeStage maps an end date to its expiration stage at the given time.
// Days remaining are counted in whole days, rounding partial days up, so a
// contract ending later today is FinalNotice, not Expired.
func ComputeStage(endDate, now time.Time, warningDays, finalNoticeDays int) domain.ExpirationStage {
	days := int(math.Ceil(endDate.Sub(now).Hours() / 24))
	switch {
	case days <= 0:
		return domain.StageExpired
	case days <= finalNoticeDays:
		return domain.StageFinalNotice
	case days <= warningDays:
		return domain.StageExpiringSoon
	default:
		return domain.StageActive
	}
}

// Scheduler computes per-principal expiration records on each tick and
// turns stage changes into lifecycle transition events.
type Scheduler struct {
	state           domain.StateRepository
	warningDays     int
	finalNoticeDays int
	logger          *slog.Logger
}

// NewScheduler creates a scheduler with the given thresholds. Zero or
// negative thresholds fall back to the defaults (30/7).
func NewScheduler(state domain.StateRepository, warningDays, finalNoticeDays int, logger *slog.Logger) *Scheduler {
	if warningDays <= 0 {
		warningDays = DefaultWarningDays
	}
	if finalNoticeDays <= 0 {
		finalNoticeDays = DefaultFinalNoticeDays
	}
	return &Scheduler{
		state:           state,
		warningDays:     warningDays,
		finalNoticeDays: finalNoticeDays,
		logger:          logger,
	}
}

// Evaluate computes the expiration record for every contractor principal
// and returns the records plus transition events for stages that changed
// since the previous pass.
//
// Stage movement is monotonically forward for a fixed end date: a computed
// stage behind the recorded one is ignored unless the end-date attribute
// itself changed, which is the only sanctioned regression path.
func (s *Scheduler) Evaluate(ctx context.Context, principals []domain.Principal, now time.Time) ([]domain.ExpirationRecord, []domain.NotificationEvent, error) {
	var records []domain.ExpirationRecord
	var events []domain.NotificationEvent

	for i := range principals {
		p := &principals[i]
		if !p.IsContractor() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return records, events, err
		}

		raw, _ := p.Attr(domain.AttrContractEndDate)
		rec := domain.ExpirationRecord{PrincipalID: p.ID, Stage: domain.StageNoEndDate}
		if raw != "" {
			if endDate, ok := parseEndDate(raw); ok {
				rec.EndDate = &endDate
				rec.Stage = ComputeStage(endDate, now, s.warningDays, s.finalNoticeDays)
			} else {
				s.logger.Warn("unparsable contract end date",
					"principal", p.ID,
					"value", raw,
				)
			}
		}

		prior, err := s.state.Get(ctx, p.ID)
		var notFound *domain.NotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return records, events, err
		}

		priorStage := domain.StageNoEndDate
		endDateChanged := true
		if prior != nil {
			priorStage = prior.Stage
			endDateChanged = prior.EndDate != raw
		}

		// Forward-only unless the end date was overridden externally.
		if !endDateChanged && rec.Stage.Before(priorStage) {
			rec.Stage = priorStage
		}

		if rec.Stage != priorStage {
			events = append(events, domain.NotificationEvent{
				ID:          uuid.NewString(),
				PrincipalID: p.ID,
				Kind:        domain.TransitionExpiration,
				From:        string(priorStage),
				To:          string(rec.Stage),
				Timestamp:   now,
			})
			s.logger.Info("expiration stage changed",
				"principal", p.ID,
				"from", priorStage,
				"to", rec.Stage,
			)
		}

		if err := s.state.SetStage(ctx, p.ID, rec.Stage, raw); err != nil {
			return records, events, err
		}
		records = append(records, rec)
	}

	return records, events, nil
}

// StageByPrincipal indexes records for synthetic-attribute lookup.
func StageByPrincipal(records []domain.ExpirationRecord) map[string]domain.ExpirationStage {
	out := make(map[string]domain.ExpirationStage, len(records))
	for _, r := range records {
		out[r.PrincipalID] = r.Stage
	}
	return out
}

func parseEndDate(raw string) (time.Time, bool) {
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
