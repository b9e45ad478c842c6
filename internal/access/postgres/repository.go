// Package postgres provides the PostgreSQL implementation of the
// access repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements access.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetOrganizationByTeam returns the organization that owns the team,
// or nil if the team does not exist.
func (r *Repository) GetOrganizationByTeam(ctx context.Context, teamID string) (*domain.Organization, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.owner_id, o.created_at, o.updated_at
		FROM organizations o
		JOIN teams t ON t.organization_id = o.id
		WHERE t.id = $1
	`
	var org domain.Organization
	err := r.db.QueryRow(ctx, query, teamID).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.OwnerID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get organization by team: %w", err)
	}
	return &org, nil
}

// GetMembership returns the membership row for (team, principal), or
// nil if none exists.
func (r *Repository) GetMembership(ctx context.Context, teamID, principalID string) (*domain.Membership, error) {
	query := `
		SELECT team_id, principal_id, role, created_at, updated_at
		FROM memberships
		WHERE team_id = $1 AND principal_id = $2
	`
	var m domain.Membership
	err := r.db.QueryRow(ctx, query, teamID, principalID).Scan(
		&m.TeamID,
		&m.PrincipalID,
		&m.Role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}
