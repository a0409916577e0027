// Package api provides the HTTP handlers for the operator-facing admin API:
// tick status and triggering, rule reload and validation, federation state,
// and the failure logs.
package api

import (
	"io"
	"log/slog"
	"net/http"

	"idflow/internal/domain"
	"idflow/internal/federation"
	"idflow/internal/lifecycle"
	"idflow/internal/rules"
)

// Handler serves the admin API. negotiator may be nil when no federation
// peer is configured.
type Handler struct {
	controller *lifecycle.Controller
	negotiator *federation.Negotiator
	outbox     domain.OutboxRepository
	failures   domain.FailureRepository
	logger     *slog.Logger
}

// NewHandler creates a Handler with its dependencies.
func NewHandler(
	controller *lifecycle.Controller,
	negotiator *federation.Negotiator,
	outbox domain.OutboxRepository,
	failures domain.FailureRepository,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		controller: controller,
		negotiator: negotiator,
		outbox:     outbox,
		failures:   failures,
		logger:     logger.With("component", "api"),
	}
}

// === Health ===

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// === Ticks ===

// GetStatus returns the summary of the most recent completed tick.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	last := h.controller.LastTick()
	if last == nil {
		writeError(w, domain.ErrNotFound("no completed ticks yet"))
		return
	}
	writeJSON(w, http.StatusOK, last)
}

// TriggerTick runs one full reconciliation tick synchronously and returns
// its summary.
func (h *Handler) TriggerTick(w http.ResponseWriter, r *http.Request) {
	summary, err := h.controller.Tick(r.Context())
	if err != nil {
		h.logger.Error("manual tick failed", "error", err)
		writeErrorStatus(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// === Rules ===

type rulesSummary struct {
	Groups        int               `json:"groups"`
	Rules         int               `json:"rules"`
	DisabledRules []rules.LoadError `json:"disabled_rules,omitempty"`
}

func summarizeRules(cfg *rules.Config) rulesSummary {
	return rulesSummary{
		Groups:        len(cfg.Groups),
		Rules:         len(cfg.Rules),
		DisabledRules: cfg.Set.Errors(),
	}
}

// GetRules returns a summary of the live rule configuration.
func (h *Handler) GetRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, summarizeRules(h.controller.Rules()))
}

// ReloadRules re-reads the rule file and swaps it in. A file that fails
// structural validation is rejected and the previous configuration stays
// live.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	disabled, err := h.controller.ReloadRules()
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := h.controller.Rules()
	writeJSON(w, http.StatusOK, rulesSummary{
		Groups:        len(cfg.Groups),
		Rules:         len(cfg.Rules),
		DisabledRules: disabled,
	})
}

type validateResponse struct {
	Valid         bool              `json:"valid"`
	Message       string            `json:"message,omitempty"`
	Groups        int               `json:"groups,omitempty"`
	Rules         int               `json:"rules,omitempty"`
	DisabledRules []rules.LoadError `json:"disabled_rules,omitempty"`
}

// ValidateRules compiles the YAML rule configuration in the request body
// without touching the live configuration. Structural problems make the
// file invalid; per-rule predicate errors are reported as disabled rules.
func (h *Handler) ValidateRules(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}
	cfg, err := rules.Parse(body)
	if err != nil {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:         true,
		Groups:        len(cfg.Groups),
		Rules:         len(cfg.Rules),
		DisabledRules: cfg.Set.Errors(),
	})
}

// === Federation ===

type federationStatus struct {
	Org         string                  `json:"org"`
	Role        domain.FederationRole   `json:"role"`
	State       domain.FederationState  `json:"state"`
	AuthEnabled bool                    `json:"auth_enabled"`
	Metadata    domain.EndpointMetadata `json:"metadata"`
	Peer        domain.EndpointMetadata `json:"peer"`
}

// GetFederation returns the local side's view of the federation handshake.
func (h *Handler) GetFederation(w http.ResponseWriter, _ *http.Request) {
	if h.negotiator == nil {
		writeError(w, domain.ErrNotFound("federation is not configured"))
		return
	}
	ep := h.negotiator.Endpoint()
	writeJSON(w, http.StatusOK, federationStatus{
		Org:         ep.Org,
		Role:        ep.Role,
		State:       ep.State,
		AuthEnabled: h.negotiator.AuthEnabled(),
		Metadata:    ep.Metadata,
		Peer:        ep.Peer,
	})
}

// NegotiateFederation runs one negotiation pass immediately instead of
// waiting for the next tick.
func (h *Handler) NegotiateFederation(w http.ResponseWriter, r *http.Request) {
	if h.negotiator == nil {
		writeError(w, domain.ErrNotFound("federation is not configured"))
		return
	}
	state, err := h.negotiator.Negotiate(r.Context())
	if err != nil {
		h.logger.Error("federation negotiation failed", "error", err)
		writeErrorStatus(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":        state,
		"auth_enabled": h.negotiator.AuthEnabled(),
	})
}

// TeardownFederation removes the local bootstrap record from the shared
// store and resets the handshake.
func (h *Handler) TeardownFederation(w http.ResponseWriter, r *http.Request) {
	if h.negotiator == nil {
		writeError(w, domain.ErrNotFound("federation is not configured"))
		return
	}
	if err := h.negotiator.Teardown(r.Context()); err != nil {
		writeErrorStatus(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// === Failure logs ===

// ListNotificationFailures returns events that exhausted their delivery
// retry budget.
func (h *Handler) ListNotificationFailures(w http.ResponseWriter, r *http.Request) {
	events, err := h.outbox.ListExhausted(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": events})
}

// ListReconcileFailures returns membership operations skipped after
// exhausting their retry budget.
func (h *Handler) ListReconcileFailures(w http.ResponseWriter, r *http.Request) {
	records, err := h.failures.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.FailureRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": records})
}

// ClearReconcileFailures empties the skipped-operation log, typically after
// the operator has resolved the underlying provisioning problem.
func (h *Handler) ClearReconcileFailures(w http.ResponseWriter, r *http.Request) {
	if err := h.failures.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
