package domain

import (
	"context"
	"time"
)

// DirectoryReader is the read-only attribute source of truth. The directory
// itself is external; this engine only consumes snapshots through it.
type DirectoryReader interface {
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]Principal, error)
}

// Provisioner applies membership changes in the external resource layer.
// ListMemberships reads actual state so the reconciler can diff against it
// immediately before applying. Implementations must make each call a single
// atomic operation and may return ConflictError on concurrent modification.
type Provisioner interface {
	AddMembership(ctx context.Context, principalID, groupID, sourceTag string) error
	RemoveMembership(ctx context.Context, principalID, groupID, sourceTag string) error
	ListMemberships(ctx context.Context, principalID string) ([]MembershipEdge, error)
}

// SharedStore is the cross-organization key/value configuration store used
// by the federation negotiator. Per-key last-writer-wins; Get returns
// NotFoundError for absent keys.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// NotificationSink delivers one event to one external endpoint.
// A nil return means delivered; any error is retryable.
type NotificationSink interface {
	Deliver(ctx context.Context, event NotificationEvent) error
	Endpoint() string
}

// PrincipalState is the engine's persisted memory of a principal between
// ticks: the last lifecycle status and expiration stage it observed.
type PrincipalState struct {
	PrincipalID string
	Status      LifecycleStatus
	Stage       ExpirationStage
	EndDate     string // raw attribute value, used to detect end-date overrides
}

// StateRepository persists PrincipalState so stage and status transitions
// can be detected across ticks. Get returns NotFoundError for principals
// the engine has never seen.
type StateRepository interface {
	Get(ctx context.Context, principalID string) (*PrincipalState, error)
	SetStage(ctx context.Context, principalID string, stage ExpirationStage, endDate string) error
	SetStatus(ctx context.Context, principalID string, status LifecycleStatus) error
}

// OutboxRepository persists notification events through their delivery
// lifecycle (pending, delivered, failed-exhausted).
type OutboxRepository interface {
	Enqueue(ctx context.Context, event NotificationEvent) error
	MarkDelivered(ctx context.Context, eventID string, attempts int) error
	MarkExhausted(ctx context.Context, eventID string, attempts int) error
	ListPending(ctx context.Context) ([]NotificationEvent, error)
	ListExhausted(ctx context.Context) ([]NotificationEvent, error)
}

// FailureRecord is one membership operation that exhausted its retry budget
// and was skipped until the next full pass.
type FailureRecord struct {
	PrincipalID string    `json:"principal_id"`
	GroupID     string    `json:"group_id"`
	Operation   string    `json:"operation"` // "add" or "remove"
	Error       string    `json:"error"`
	At          time.Time `json:"at"`
}

// FailureRepository is the operator-visible log of skipped membership
// operations.
type FailureRepository interface {
	Record(ctx context.Context, rec FailureRecord) error
	List(ctx context.Context) ([]FailureRecord, error)
	Clear(ctx context.Context) error
}
