package catalog

import (
	"context"
	"testing"

	"github.com/bissquit/status-garden/internal/access"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// accessRepo is an in-memory access.Repository.
type accessRepo struct {
	orgsByTeam  map[string]*domain.Organization
	memberships map[string]domain.Role // key teamID+"/"+principalID
}

func (r *accessRepo) GetOrganizationByTeam(_ context.Context, teamID string) (*domain.Organization, error) {
	return r.orgsByTeam[teamID], nil
}

func (r *accessRepo) GetMembership(_ context.Context, teamID, principalID string) (*domain.Membership, error) {
	role, ok := r.memberships[teamID+"/"+principalID]
	if !ok {
		return nil, nil
	}
	return &domain.Membership{TeamID: teamID, PrincipalID: principalID, Role: role}, nil
}

// mockRepository is an in-memory catalog.Repository.
type mockRepository struct {
	orgs          map[string]*domain.Organization
	teams         map[string]*domain.Team
	services      map[string]*domain.Service
	memberships   map[string]*domain.Membership
	orgMembers    map[string]bool // orgID+"/"+principalID
	openIncidents map[string]int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		orgs:          make(map[string]*domain.Organization),
		teams:         make(map[string]*domain.Team),
		services:      make(map[string]*domain.Service),
		memberships:   make(map[string]*domain.Membership),
		orgMembers:    make(map[string]bool),
		openIncidents: make(map[string]int),
	}
}

func (m *mockRepository) CreateOrganization(_ context.Context, org *domain.Organization) error {
	m.orgs[org.ID] = org
	return nil
}

func (m *mockRepository) GetOrganization(_ context.Context, id string) (*domain.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	return org, nil
}

func (m *mockRepository) DeleteOrganization(_ context.Context, id string) error {
	delete(m.orgs, id)
	return nil
}

func (m *mockRepository) IsOrganizationMember(_ context.Context, orgID, principalID string) (bool, error) {
	return m.orgMembers[orgID+"/"+principalID], nil
}

func (m *mockRepository) CreateTeam(_ context.Context, team *domain.Team) error {
	m.teams[team.ID] = team
	return nil
}

func (m *mockRepository) GetTeam(_ context.Context, id string) (*domain.Team, error) {
	team, ok := m.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	return team, nil
}

func (m *mockRepository) DeleteTeam(_ context.Context, id string) error {
	delete(m.teams, id)
	return nil
}

func (m *mockRepository) UpsertMembership(_ context.Context, membership *domain.Membership) error {
	m.memberships[membership.TeamID+"/"+membership.PrincipalID] = membership
	return nil
}

func (m *mockRepository) DeleteMembership(_ context.Context, teamID, principalID string) (bool, error) {
	key := teamID + "/" + principalID
	_, ok := m.memberships[key]
	delete(m.memberships, key)
	return ok, nil
}

func (m *mockRepository) ListMemberships(_ context.Context, teamID string) ([]domain.Membership, error) {
	out := make([]domain.Membership, 0)
	for _, membership := range m.memberships {
		if membership.TeamID == teamID {
			out = append(out, *membership)
		}
	}
	return out, nil
}

func (m *mockRepository) CreateService(_ context.Context, service *domain.Service) error {
	m.services[service.ID] = service
	return nil
}

func (m *mockRepository) GetService(_ context.Context, id string) (*domain.Service, error) {
	service, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return service, nil
}

func (m *mockRepository) ListServices(_ context.Context, teamID string) ([]domain.Service, error) {
	out := make([]domain.Service, 0)
	for _, service := range m.services {
		if service.TeamID == teamID {
			out = append(out, *service)
		}
	}
	return out, nil
}

func (m *mockRepository) UpdateService(_ context.Context, service *domain.Service) error {
	m.services[service.ID] = service
	return nil
}

func (m *mockRepository) DeleteService(_ context.Context, id string) error {
	delete(m.services, id)
	return nil
}

func (m *mockRepository) UpdateServiceStatus(_ context.Context, serviceID string, status domain.ServiceStatus) error {
	m.services[serviceID].Status = status
	return nil
}

func (m *mockRepository) CountOpenIncidents(_ context.Context, serviceID string) (int, error) {
	return m.openIncidents[serviceID], nil
}

type mockNotifier struct {
	statusChanges int
	orgIDs        []string
}

func (m *mockNotifier) ServiceStatusChanged(_ context.Context, _ *domain.Service, orgID string, _, _ domain.ServiceStatus) {
	m.statusChanges++
	m.orgIDs = append(m.orgIDs, orgID)
}

type mockAuditor struct {
	records []*domain.AuditRecord
}

func (m *mockAuditor) Record(_ context.Context, record *domain.AuditRecord) {
	m.records = append(m.records, record)
}

type fixture struct {
	repo     *mockRepository
	access   *accessRepo
	notifier *mockNotifier
	auditor  *mockAuditor
	service  *Service
}

// newFixture sets up org-1 (owned by "owner") with team-1 and three
// memberships: admin, member and viewer principals.
func newFixture() *fixture {
	org := &domain.Organization{ID: "org-1", Name: "Acme", Slug: "acme", OwnerID: "owner"}
	team := &domain.Team{ID: "team-1", OrganizationID: "org-1", Name: "Core", Slug: "core"}

	repo := newMockRepository()
	repo.orgs[org.ID] = org
	repo.teams[team.ID] = team

	accessRepo := &accessRepo{
		orgsByTeam: map[string]*domain.Organization{"team-1": org},
		memberships: map[string]domain.Role{
			"team-1/admin":  domain.RoleAdmin,
			"team-1/member": domain.RoleMember,
			"team-1/viewer": domain.RoleViewer,
		},
	}
	for _, principal := range []string{"admin", "member", "viewer"} {
		repo.orgMembers["org-1/"+principal] = true
	}

	notifier := &mockNotifier{}
	auditor := &mockAuditor{}
	gate := access.NewGate(access.NewResolver(accessRepo))

	return &fixture{
		repo:     repo,
		access:   accessRepo,
		notifier: notifier,
		auditor:  auditor,
		service:  NewService(repo, gate, notifier, auditor),
	}
}

func TestCreateOrganization(t *testing.T) {
	f := newFixture()

	org, err := f.service.CreateOrganization(context.Background(), "alice", CreateOrganizationInput{Name: "New Org", Slug: "new-org"})
	require.NoError(t, err)
	assert.Equal(t, "alice", org.OwnerID)
	assert.NotEmpty(t, org.ID)
	require.Len(t, f.auditor.records, 1)
	assert.Equal(t, "organization.create", f.auditor.records[0].Action)
}

func TestGetOrganization_Visibility(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.GetOrganization(ctx, "owner", "org-1")
	assert.NoError(t, err)

	_, err = f.service.GetOrganization(ctx, "member", "org-1")
	assert.NoError(t, err)

	_, err = f.service.GetOrganization(ctx, "stranger", "org-1")
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
}

func TestDeleteOrganization_OwnerOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.service.DeleteOrganization(ctx, "admin", "org-1")
	assert.ErrorIs(t, err, access.ErrInsufficientRole)

	err = f.service.DeleteOrganization(ctx, "stranger", "org-1")
	assert.ErrorIs(t, err, ErrOrganizationNotFound)

	err = f.service.DeleteOrganization(ctx, "owner", "org-1")
	assert.NoError(t, err)
}

func TestCreateTeam_OrgOwnerOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.CreateTeam(ctx, "admin", "org-1", CreateTeamInput{Name: "Infra", Slug: "infra"})
	assert.ErrorIs(t, err, access.ErrInsufficientRole)

	team, err := f.service.CreateTeam(ctx, "owner", "org-1", CreateTeamInput{Name: "Infra", Slug: "infra"})
	require.NoError(t, err)
	assert.Equal(t, "org-1", team.OrganizationID)
}

func TestUpsertMembership_CappedAtActorRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// Admin can grant up to admin.
	_, err := f.service.UpsertMembership(ctx, "admin", "team-1", "newbie", domain.RoleMember)
	assert.NoError(t, err)

	_, err = f.service.UpsertMembership(ctx, "admin", "team-1", "newbie", domain.RoleOwner)
	assert.ErrorIs(t, err, ErrRoleExceedsGrantor)

	// Org owner short-circuits to owner and can grant anything.
	_, err = f.service.UpsertMembership(ctx, "owner", "team-1", "newbie", domain.RoleOwner)
	assert.NoError(t, err)

	// Member cannot manage memberships at all.
	_, err = f.service.UpsertMembership(ctx, "member", "team-1", "newbie", domain.RoleViewer)
	assert.ErrorIs(t, err, access.ErrInsufficientRole)
}

func TestUpsertMembership_InvalidRole(t *testing.T) {
	f := newFixture()

	_, err := f.service.UpsertMembership(context.Background(), "admin", "team-1", "newbie", domain.Role("superuser"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRemoveMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.UpsertMembership(ctx, "admin", "team-1", "newbie", domain.RoleViewer)
	require.NoError(t, err)

	assert.NoError(t, f.service.RemoveMembership(ctx, "admin", "team-1", "newbie"))
	assert.ErrorIs(t, f.service.RemoveMembership(ctx, "admin", "team-1", "newbie"), ErrMembershipNotFound)
}

func TestCreateService_RequiresAdmin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.CreateService(ctx, "member", "team-1", CreateServiceInput{Name: "api"})
	assert.ErrorIs(t, err, access.ErrInsufficientRole)

	service, err := f.service.CreateService(ctx, "admin", "team-1", CreateServiceInput{Name: "api"})
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOperational, service.Status)
	assert.Equal(t, domain.ActiveStatusActive, service.ActiveStatus)
	assert.Equal(t, "service", service.EntityType)
}

func TestGetService_RequiresMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.service.CreateService(ctx, "admin", "team-1", CreateServiceInput{Name: "api"})
	require.NoError(t, err)

	_, err = f.service.GetService(ctx, "viewer", created.ID)
	assert.NoError(t, err)

	_, err = f.service.GetService(ctx, "stranger", created.ID)
	assert.ErrorIs(t, err, access.ErrNotAMember)
}

func TestDeleteService_BlockedByOpenIncidents(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.service.CreateService(ctx, "admin", "team-1", CreateServiceInput{Name: "api"})
	require.NoError(t, err)

	f.repo.openIncidents[created.ID] = 2
	assert.ErrorIs(t, f.service.DeleteService(ctx, "admin", created.ID), ErrServiceHasOpenIncidents)

	f.repo.openIncidents[created.ID] = 0
	assert.NoError(t, f.service.DeleteService(ctx, "admin", created.ID))
}

func TestOverrideServiceStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.service.CreateService(ctx, "admin", "team-1", CreateServiceInput{Name: "api"})
	require.NoError(t, err)

	_, err = f.service.OverrideServiceStatus(ctx, "member", created.ID, domain.ServiceStatusDegraded)
	assert.ErrorIs(t, err, access.ErrInsufficientRole)

	updated, err := f.service.OverrideServiceStatus(ctx, "admin", created.ID, domain.ServiceStatusDegraded)
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusDegraded, updated.Status)
	assert.Equal(t, 1, f.notifier.statusChanges)

	// Writing the same status again does not notify.
	_, err = f.service.OverrideServiceStatus(ctx, "admin", created.ID, domain.ServiceStatusDegraded)
	require.NoError(t, err)
	assert.Equal(t, 1, f.notifier.statusChanges)
}
