package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"idflow/internal/domain"
)

var _ domain.StateRepository = (*StateRepo)(nil)

// StateRepo persists the engine's per-principal memory between ticks.
type StateRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

func NewStateRepo(writeDB, readDB *sql.DB) *StateRepo {
	return &StateRepo{writeDB: writeDB, readDB: readDB}
}

func (r *StateRepo) Get(ctx context.Context, principalID string) (*domain.PrincipalState, error) {
	var st domain.PrincipalState
	var status, stage string
	err := r.readDB.QueryRowContext(ctx,
		`SELECT principal_id, status, stage, end_date FROM principal_state WHERE principal_id = ?`,
		principalID,
	).Scan(&st.PrincipalID, &status, &stage, &st.EndDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("no state for principal %q", principalID)
	}
	if err != nil {
		return nil, fmt.Errorf("get state for %s: %w", principalID, err)
	}
	st.Status = domain.LifecycleStatus(status)
	st.Stage = domain.ExpirationStage(stage)
	return &st, nil
}

func (r *StateRepo) SetStage(ctx context.Context, principalID string, stage domain.ExpirationStage, endDate string) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO principal_state (principal_id, stage, end_date, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(principal_id) DO UPDATE SET stage = excluded.stage, end_date = excluded.end_date, updated_at = excluded.updated_at`,
		principalID, string(stage), endDate, now(),
	)
	if err != nil {
		return fmt.Errorf("set stage for %s: %w", principalID, err)
	}
	return nil
}

func (r *StateRepo) SetStatus(ctx context.Context, principalID string, status domain.LifecycleStatus) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO principal_state (principal_id, status, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(principal_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		principalID, string(status), now(),
	)
	if err != nil {
		return fmt.Errorf("set status for %s: %w", principalID, err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
