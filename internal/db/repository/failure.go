package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"idflow/internal/domain"
)

var _ domain.FailureRepository = (*FailureRepo)(nil)

// FailureRepo is the operator-visible log of membership operations that
// exhausted their retry budget.
type FailureRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

func NewFailureRepo(writeDB, readDB *sql.DB) *FailureRepo {
	return &FailureRepo{writeDB: writeDB, readDB: readDB}
}

func (r *FailureRepo) Record(ctx context.Context, rec domain.FailureRecord) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO reconcile_failures (principal_id, group_id, operation, error, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.PrincipalID, rec.GroupID, rec.Operation, rec.Error, rec.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record failure for %s/%s: %w", rec.PrincipalID, rec.GroupID, err)
	}
	return nil
}

func (r *FailureRepo) List(ctx context.Context) ([]domain.FailureRecord, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT principal_id, group_id, operation, error, occurred_at FROM reconcile_failures ORDER BY occurred_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var recs []domain.FailureRecord
	for rows.Next() {
		var rec domain.FailureRecord
		var occurredAt string
		if err := rows.Scan(&rec.PrincipalID, &rec.GroupID, &rec.Operation, &rec.Error, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, occurredAt); err == nil {
			rec.At = ts
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *FailureRepo) Clear(ctx context.Context) error {
	if _, err := r.writeDB.ExecContext(ctx, `DELETE FROM reconcile_failures`); err != nil {
		return fmt.Errorf("clear failures: %w", err)
	}
	return nil
}
