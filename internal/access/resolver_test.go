package access

import (
	"context"
	"errors"
	"testing"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	orgs        map[string]*domain.Organization // keyed by team ID
	memberships map[string]*domain.Membership   // keyed by teamID+"/"+principalID
	orgErr      error
	memberErr   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		orgs:        make(map[string]*domain.Organization),
		memberships: make(map[string]*domain.Membership),
	}
}

func (m *mockRepository) GetOrganizationByTeam(_ context.Context, teamID string) (*domain.Organization, error) {
	if m.orgErr != nil {
		return nil, m.orgErr
	}
	return m.orgs[teamID], nil
}

func (m *mockRepository) GetMembership(_ context.Context, teamID, principalID string) (*domain.Membership, error) {
	if m.memberErr != nil {
		return nil, m.memberErr
	}
	return m.memberships[teamID+"/"+principalID], nil
}

func (m *mockRepository) addTeam(teamID, orgID, ownerID string) {
	m.orgs[teamID] = &domain.Organization{ID: orgID, OwnerID: ownerID}
}

func (m *mockRepository) addMember(teamID, principalID string, role domain.Role) {
	m.memberships[teamID+"/"+principalID] = &domain.Membership{
		TeamID:      teamID,
		PrincipalID: principalID,
		Role:        role,
	}
}

func TestResolveRole_OwnerShortCircuit(t *testing.T) {
	repo := newMockRepository()
	repo.addTeam("team-1", "org-1", "alice")

	resolver := NewResolver(repo)

	// No membership row exists for alice, ownership alone grants owner.
	role, ok, err := resolver.ResolveRole(context.Background(), "alice", "team-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleOwner, role)
}

func TestResolveRole_OwnerOverridesMembership(t *testing.T) {
	repo := newMockRepository()
	repo.addTeam("team-1", "org-1", "alice")
	// Inconsistent membership row must not demote the org owner.
	repo.addMember("team-1", "alice", domain.RoleViewer)

	resolver := NewResolver(repo)

	role, ok, err := resolver.ResolveRole(context.Background(), "alice", "team-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleOwner, role)
}

func TestResolveRole_MembershipLookup(t *testing.T) {
	repo := newMockRepository()
	repo.addTeam("team-1", "org-1", "alice")
	repo.addMember("team-1", "bob", domain.RoleAdmin)

	resolver := NewResolver(repo)

	role, ok, err := resolver.ResolveRole(context.Background(), "bob", "team-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, role)
}

func TestResolveRole_NoMembership(t *testing.T) {
	repo := newMockRepository()
	repo.addTeam("team-1", "org-1", "alice")

	resolver := NewResolver(repo)

	_, ok, err := resolver.ResolveRole(context.Background(), "mallory", "team-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveRole_UnknownTeam(t *testing.T) {
	repo := newMockRepository()
	resolver := NewResolver(repo)

	// Unknown team is indistinguishable from no access.
	_, ok, err := resolver.ResolveRole(context.Background(), "alice", "no-such-team")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveRole_RepositoryError(t *testing.T) {
	repo := newMockRepository()
	repo.orgErr = errors.New("connection refused")

	resolver := NewResolver(repo)

	_, _, err := resolver.ResolveRole(context.Background(), "alice", "team-1")
	assert.Error(t, err)
}

func TestHasAccess(t *testing.T) {
	repo := newMockRepository()
	repo.addTeam("team-1", "org-1", "alice")
	repo.addMember("team-1", "bob", domain.RoleViewer)

	resolver := NewResolver(repo)

	ok, err := resolver.HasAccess(context.Background(), "bob", "team-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = resolver.HasAccess(context.Background(), "mallory", "team-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
