package access

import (
	"context"

	"github.com/bissquit/status-garden/internal/domain"
)

// Gate is the single enforcement point for role-gated operations.
// Every mutating operation must pass through Authorize before any
// state change is applied.
type Gate struct {
	resolver *Resolver
}

// NewGate creates a new permission gate.
func NewGate(resolver *Resolver) *Gate {
	return &Gate{resolver: resolver}
}

// Authorize checks that the principal's effective role in the team
// satisfies the required minimum. Returns ErrNotAMember when the
// principal holds no role (or the team does not exist), and
// ErrInsufficientRole when the role is present but too weak.
func (g *Gate) Authorize(ctx context.Context, principalID, teamID string, required domain.Role) error {
	role, ok, err := g.resolver.ResolveRole(ctx, principalID, teamID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAMember
	}
	if !role.Satisfies(required) {
		return ErrInsufficientRole
	}
	return nil
}

// RequireAccess checks the weaker membership-only condition used by
// read operations.
func (g *Gate) RequireAccess(ctx context.Context, principalID, teamID string) error {
	ok, err := g.resolver.HasAccess(ctx, principalID, teamID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}

// ResolveRole exposes the underlying resolver for callers that need
// the effective role itself, such as membership-grant capping.
func (g *Gate) ResolveRole(ctx context.Context, principalID, teamID string) (domain.Role, bool, error) {
	return g.resolver.ResolveRole(ctx, principalID, teamID)
}
