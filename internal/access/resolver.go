// Package access resolves a principal's effective role within a team
// and enforces minimum-role requirements for operations.
package access

import (
	"context"
	"fmt"

	"github.com/bissquit/status-garden/internal/domain"
)

// Repository defines the lookups the resolver needs.
type Repository interface {
	// GetOrganizationByTeam returns the organization owning the team,
	// or nil if the team does not exist.
	GetOrganizationByTeam(ctx context.Context, teamID string) (*domain.Organization, error)

	// GetMembership returns the membership row for (team, principal),
	// or nil if none exists.
	GetMembership(ctx context.Context, teamID, principalID string) (*domain.Membership, error)
}

// Resolver computes a principal's effective role for a team.
type Resolver struct {
	repo Repository
}

// NewResolver creates a new resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveRole returns the principal's effective role in the team.
// Organization ownership is authoritative: the org owner resolves to
// owner for every team in the org regardless of any membership row.
// A missing team or missing membership yields ok=false, not an error,
// so callers cannot distinguish absence from lack of access.
func (r *Resolver) ResolveRole(ctx context.Context, principalID, teamID string) (domain.Role, bool, error) {
	org, err := r.repo.GetOrganizationByTeam(ctx, teamID)
	if err != nil {
		return "", false, fmt.Errorf("resolve team organization: %w", err)
	}
	if org == nil {
		return "", false, nil
	}
	if org.OwnerID == principalID {
		return domain.RoleOwner, true, nil
	}

	membership, err := r.repo.GetMembership(ctx, teamID, principalID)
	if err != nil {
		return "", false, fmt.Errorf("resolve membership: %w", err)
	}
	if membership == nil {
		return "", false, nil
	}
	return membership.Role, true, nil
}

// HasAccess reports whether the principal holds any role in the team.
func (r *Resolver) HasAccess(ctx context.Context, principalID, teamID string) (bool, error) {
	_, ok, err := r.ResolveRole(ctx, principalID, teamID)
	return ok, err
}
