package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"idflow/internal/domain"
)

var _ domain.OutboxRepository = (*OutboxRepo)(nil)

// OutboxRepo persists notification events through their delivery lifecycle.
// Events survive restarts; pending rows are re-enqueued at startup.
type OutboxRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

func NewOutboxRepo(writeDB, readDB *sql.DB) *OutboxRepo {
	return &OutboxRepo{writeDB: writeDB, readDB: readDB}
}

func (r *OutboxRepo) Enqueue(ctx context.Context, event domain.NotificationEvent) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO notification_outbox (id, principal_id, kind, from_value, to_value, occurred_at, status, attempts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		event.ID, event.PrincipalID, string(event.Kind), event.From, event.To,
		event.Timestamp.UTC().Format(time.RFC3339Nano), string(domain.DeliveryPending),
	)
	if err != nil {
		return fmt.Errorf("enqueue event %s: %w", event.ID, err)
	}
	return nil
}

func (r *OutboxRepo) MarkDelivered(ctx context.Context, eventID string, attempts int) error {
	return r.setStatus(ctx, eventID, domain.DeliveryDelivered, attempts)
}

func (r *OutboxRepo) MarkExhausted(ctx context.Context, eventID string, attempts int) error {
	return r.setStatus(ctx, eventID, domain.DeliveryFailedExhausted, attempts)
}

func (r *OutboxRepo) setStatus(ctx context.Context, eventID string, status domain.DeliveryStatus, attempts int) error {
	_, err := r.writeDB.ExecContext(ctx,
		`UPDATE notification_outbox SET status = ?, attempts = ? WHERE id = ?`,
		string(status), attempts, eventID,
	)
	if err != nil {
		return fmt.Errorf("mark event %s %s: %w", eventID, status, err)
	}
	return nil
}

func (r *OutboxRepo) ListPending(ctx context.Context) ([]domain.NotificationEvent, error) {
	return r.list(ctx, domain.DeliveryPending)
}

func (r *OutboxRepo) ListExhausted(ctx context.Context) ([]domain.NotificationEvent, error) {
	return r.list(ctx, domain.DeliveryFailedExhausted)
}

func (r *OutboxRepo) list(ctx context.Context, status domain.DeliveryStatus) ([]domain.NotificationEvent, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT id, principal_id, kind, from_value, to_value, occurred_at, status, attempts
		 FROM notification_outbox WHERE status = ? ORDER BY occurred_at, id`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s events: %w", status, err)
	}
	defer rows.Close()

	var events []domain.NotificationEvent
	for rows.Next() {
		var e domain.NotificationEvent
		var kind, st, occurredAt string
		if err := rows.Scan(&e.ID, &e.PrincipalID, &kind, &e.From, &e.To, &occurredAt, &st, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = domain.TransitionKind(kind)
		e.Status = domain.DeliveryStatus(st)
		if ts, err := time.Parse(time.RFC3339Nano, occurredAt); err == nil {
			e.Timestamp = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
