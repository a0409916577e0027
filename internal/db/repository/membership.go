// Package repository implements the metastore-backed ports: the reference
// Provisioner, principal state, notification outbox, and failure log.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"idflow/internal/domain"
)

var _ domain.Provisioner = (*MembershipRepo)(nil)

// MembershipRepo is the reference Provisioner, backed by the local
// metastore. Production deployments swap in a client for the external
// provisioning system; this implementation keeps the same conflict
// semantics so the reconciler's retry paths are exercised identically.
type MembershipRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

func NewMembershipRepo(writeDB, readDB *sql.DB) *MembershipRepo {
	return &MembershipRepo{writeDB: writeDB, readDB: readDB}
}

func (r *MembershipRepo) AddMembership(ctx context.Context, principalID, groupID, sourceTag string) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO memberships (principal_id, group_id, source_tag, created_at) VALUES (?, ?, ?, ?)`,
		principalID, groupID, sourceTag, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict("membership %s/%s (%s) already exists", principalID, groupID, sourceTag)
		}
		return fmt.Errorf("add membership %s/%s: %w", principalID, groupID, err)
	}
	return nil
}

func (r *MembershipRepo) RemoveMembership(ctx context.Context, principalID, groupID, sourceTag string) error {
	res, err := r.writeDB.ExecContext(ctx,
		`DELETE FROM memberships WHERE principal_id = ? AND group_id = ? AND source_tag = ?`,
		principalID, groupID, sourceTag,
	)
	if err != nil {
		return fmt.Errorf("remove membership %s/%s: %w", principalID, groupID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove membership %s/%s: %w", principalID, groupID, err)
	}
	if n == 0 {
		return domain.ErrConflict("membership %s/%s (%s) no longer exists", principalID, groupID, sourceTag)
	}
	return nil
}

func (r *MembershipRepo) ListMemberships(ctx context.Context, principalID string) ([]domain.MembershipEdge, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT principal_id, group_id, source_tag FROM memberships WHERE principal_id = ? ORDER BY group_id, source_tag`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships for %s: %w", principalID, err)
	}
	defer rows.Close()

	var edges []domain.MembershipEdge
	for rows.Next() {
		var e domain.MembershipEdge
		if err := rows.Scan(&e.PrincipalID, &e.GroupID, &e.SourceTag); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// isUniqueViolation matches go-sqlite3's constraint error without importing
// its cgo types into every caller.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
