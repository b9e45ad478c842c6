package incidents

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/status-garden/internal/access"
	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/keyedmutex"
	"github.com/bissquit/status-garden/internal/status"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx for the mock repository; only Commit and
// Rollback are ever called.
type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return pgx.ErrTxClosed }

// mockRepository implements Repository and status.Repository in memory.
type mockRepository struct {
	incidents map[string]*domain.Incident
	updates   []*domain.IncidentUpdate
	service   *domain.Service
	windows   []*domain.Maintenance

	// beforeTx, when set, runs once at the next BeginTx. It stands in
	// for a concurrent request committing between an operation's
	// initial load and its transaction.
	beforeTx func()
}

func newMockRepository(service *domain.Service) *mockRepository {
	return &mockRepository{
		incidents: make(map[string]*domain.Incident),
		service:   service,
	}
}

func (m *mockRepository) BeginTx(context.Context) (pgx.Tx, error) {
	if m.beforeTx != nil {
		fn := m.beforeTx
		m.beforeTx = nil
		fn()
	}
	return fakeTx{}, nil
}

func (m *mockRepository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	incident, ok := m.incidents[id]
	if !ok {
		return nil, ErrIncidentNotFound
	}
	stored := *incident
	return &stored, nil
}

func (m *mockRepository) ListIncidents(_ context.Context, serviceID string) ([]*domain.Incident, error) {
	out := make([]*domain.Incident, 0)
	for _, incident := range m.incidents {
		if incident.ServiceID == serviceID {
			out = append(out, incident)
		}
	}
	return out, nil
}

func (m *mockRepository) ListUpdates(_ context.Context, incidentID string) ([]domain.IncidentUpdate, error) {
	out := make([]domain.IncidentUpdate, 0)
	for _, u := range m.updates {
		if u.IncidentID == incidentID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockRepository) GetIncidentTx(ctx context.Context, _ pgx.Tx, id string) (*domain.Incident, error) {
	return m.GetIncident(ctx, id)
}

func (m *mockRepository) CreateIncidentTx(_ context.Context, _ pgx.Tx, incident *domain.Incident) error {
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now()
	}
	stored := *incident
	m.incidents[incident.ID] = &stored
	return nil
}

func (m *mockRepository) UpdateIncidentTx(_ context.Context, _ pgx.Tx, incident *domain.Incident) error {
	if _, ok := m.incidents[incident.ID]; !ok {
		return ErrIncidentNotFound
	}
	stored := *incident
	m.incidents[incident.ID] = &stored
	return nil
}

func (m *mockRepository) DeleteIncidentTx(_ context.Context, _ pgx.Tx, id string) error {
	delete(m.incidents, id)
	return nil
}

func (m *mockRepository) CreateUpdateTx(_ context.Context, _ pgx.Tx, update *domain.IncidentUpdate) error {
	update.CreatedAt = time.Now()
	m.updates = append(m.updates, update)
	return nil
}

// status.Repository

func (m *mockRepository) GetServiceStatusForUpdateTx(context.Context, pgx.Tx, string) (domain.ServiceStatus, error) {
	return m.service.Status, nil
}

func (m *mockRepository) ListUnresolvedIncidentsTx(_ context.Context, _ pgx.Tx, serviceID string) ([]*domain.Incident, error) {
	out := make([]*domain.Incident, 0)
	for _, incident := range m.incidents {
		if incident.ServiceID == serviceID && !incident.Status.IsResolved() {
			out = append(out, incident)
		}
	}
	return out, nil
}

func (m *mockRepository) ListInProgressMaintenanceTx(context.Context, pgx.Tx, string) ([]*domain.Maintenance, error) {
	return m.windows, nil
}

func (m *mockRepository) UpdateServiceStatusTx(_ context.Context, _ pgx.Tx, _ string, s domain.ServiceStatus) error {
	m.service.Status = s
	return nil
}

// ServiceReader

func (m *mockRepository) GetService(_ context.Context, id string) (*domain.Service, error) {
	if m.service == nil || m.service.ID != id {
		return nil, catalog.ErrServiceNotFound
	}
	stored := *m.service
	return &stored, nil
}

func (m *mockRepository) GetTeam(_ context.Context, id string) (*domain.Team, error) {
	if id != "team-1" {
		return nil, catalog.ErrTeamNotFound
	}
	return &domain.Team{ID: "team-1", OrganizationID: "org-1"}, nil
}

// accessRepo is an in-memory access.Repository.
type accessRepo struct {
	org         *domain.Organization
	memberships map[string]domain.Role
}

func (r *accessRepo) GetOrganizationByTeam(_ context.Context, teamID string) (*domain.Organization, error) {
	if teamID != "team-1" {
		return nil, nil
	}
	return r.org, nil
}

func (r *accessRepo) GetMembership(_ context.Context, teamID, principalID string) (*domain.Membership, error) {
	role, ok := r.memberships[teamID+"/"+principalID]
	if !ok {
		return nil, nil
	}
	return &domain.Membership{TeamID: teamID, PrincipalID: principalID, Role: role}, nil
}

type mockNotifier struct {
	created       int
	updated       int
	statusChanges []domain.ServiceStatus
	orgIDs        []string
}

func (m *mockNotifier) IncidentCreated(_ context.Context, _ *domain.Incident, _ string, orgID string) {
	m.created++
	m.orgIDs = append(m.orgIDs, orgID)
}
func (m *mockNotifier) IncidentUpdated(_ context.Context, _ *domain.Incident, _ string, orgID string, _ domain.IncidentStatus) {
	m.updated++
	m.orgIDs = append(m.orgIDs, orgID)
}
func (m *mockNotifier) ServiceStatusChanged(_ context.Context, _ *domain.Service, orgID string, _, new domain.ServiceStatus) {
	m.statusChanges = append(m.statusChanges, new)
	m.orgIDs = append(m.orgIDs, orgID)
}

type mockAuditor struct {
	actions []string
	records []*domain.AuditRecord
}

func (m *mockAuditor) Record(_ context.Context, record *domain.AuditRecord) {
	m.actions = append(m.actions, record.Action)
	m.records = append(m.records, record)
}

type fixture struct {
	repo     *mockRepository
	notifier *mockNotifier
	auditor  *mockAuditor
	service  *Service
}

func newFixture() *fixture {
	svc := &domain.Service{
		ID:     "svc-1",
		TeamID: "team-1",
		Name:   "api",
		Status: domain.ServiceStatusOperational,
	}
	repo := newMockRepository(svc)

	gate := access.NewGate(access.NewResolver(&accessRepo{
		org: &domain.Organization{ID: "org-1", OwnerID: "owner"},
		memberships: map[string]domain.Role{
			"team-1/admin":  domain.RoleAdmin,
			"team-1/member": domain.RoleMember,
			"team-1/viewer": domain.RoleViewer,
		},
	}))

	notifier := &mockNotifier{}
	auditor := &mockAuditor{}

	return &fixture{
		repo:     repo,
		notifier: notifier,
		auditor:  auditor,
		service:  NewService(repo, repo, gate, status.NewRecalculator(repo), keyedmutex.New(), notifier, auditor),
	}
}

func TestCreate_DerivesServiceStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{
		Title:    "database is down",
		Severity: domain.SeverityCritical,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IncidentStatusInvestigating, incident.Status)
	assert.Equal(t, domain.ServiceStatusMajorOutage, f.repo.service.Status)
	assert.Equal(t, 1, f.notifier.created)
	assert.Equal(t, []domain.ServiceStatus{domain.ServiceStatusMajorOutage}, f.notifier.statusChanges)
	assert.Contains(t, f.auditor.actions, "incident.create")
}

func TestCreate_RequiresMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.service.Create(ctx, "viewer", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityLow})
	assert.ErrorIs(t, err, access.ErrInsufficientRole)

	_, err = f.service.Create(ctx, "stranger", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityLow})
	assert.ErrorIs(t, err, access.ErrNotAMember)
}

func TestCreate_InvalidSeverity(t *testing.T) {
	f := newFixture()

	_, err := f.service.Create(context.Background(), "member", "svc-1", CreateInput{
		Title:    "database is down",
		Severity: domain.IncidentSeverity("catastrophic"),
	})
	assert.ErrorIs(t, err, ErrInvalidSeverity)
}

func TestCreate_InitialMessageAppendsTimeline(t *testing.T) {
	f := newFixture()

	incident, err := f.service.Create(context.Background(), "member", "svc-1", CreateInput{
		Title:    "database is down",
		Severity: domain.SeverityLow,
		Message:  "investigating connection errors",
	})
	require.NoError(t, err)

	updates, err := f.service.ListUpdates(context.Background(), "member", incident.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.IncidentStatusInvestigating, updates[0].Status)
}

func TestResolve(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{
		Title:    "database is down",
		Severity: domain.SeverityCritical,
	})
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusMajorOutage, f.repo.service.Status)

	resolved, err := f.service.Resolve(ctx, "member", incident.ID, "")
	require.NoError(t, err)

	assert.True(t, resolved.Status.IsResolved())
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, domain.ServiceStatusOperational, f.repo.service.Status)

	// A templated timeline entry is appended.
	updates, err := f.service.ListUpdates(ctx, "member", incident.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.IncidentStatusResolved, updates[0].Status)
	assert.Contains(t, updates[0].Message, "resolved")
}

func TestResolve_Twice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityLow})
	require.NoError(t, err)

	_, err = f.service.Resolve(ctx, "member", incident.ID, "")
	require.NoError(t, err)

	_, err = f.service.Resolve(ctx, "member", incident.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestUpdate_ResolvedRequiresAdmin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityLow})
	require.NoError(t, err)
	_, err = f.service.Resolve(ctx, "member", incident.ID, "")
	require.NoError(t, err)

	title := "database was down"
	_, err = f.service.Update(ctx, "member", incident.ID, UpdateInput{Title: &title})
	assert.ErrorIs(t, err, access.ErrInsufficientRole)

	updated, err := f.service.Update(ctx, "admin", incident.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
}

func TestUpdate_SeverityChangeRecalculates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityLow})
	require.NoError(t, err)
	require.Equal(t, domain.ServiceStatusDegraded, f.repo.service.Status)

	critical := domain.SeverityCritical
	_, err = f.service.Update(ctx, "member", incident.ID, UpdateInput{Severity: &critical})
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusMajorOutage, f.repo.service.Status)
}

func TestUpdate_StatusChangeAppendsTemplatedEntry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityLow})
	require.NoError(t, err)

	monitoring := domain.IncidentStatusMonitoring
	updated, err := f.service.Update(ctx, "member", incident.ID, UpdateInput{Status: &monitoring})
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusMonitoring, updated.Status)
	assert.Equal(t, 1, f.notifier.updated)

	// The status change wrote an automatic timeline entry.
	updates, err := f.service.ListUpdates(ctx, "member", incident.ID)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.IncidentStatusMonitoring, updates[0].Status)
	assert.NotEmpty(t, updates[0].Message)

	// Resolving through Update honors the resolution invariant and
	// re-derives the service status.
	resolved := domain.IncidentStatusResolved
	updated, err = f.service.Update(ctx, "member", incident.ID, UpdateInput{Status: &resolved})
	require.NoError(t, err)
	assert.True(t, updated.Status.IsResolved())
	assert.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, domain.ServiceStatusOperational, f.repo.service.Status)
}

func TestUpdate_PreservesConcurrentResolution(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityCritical})
	require.NoError(t, err)

	// A resolve commits between this update's initial load and its
	// transaction; the title edit must not revert it.
	f.repo.beforeTx = func() {
		stored := f.repo.incidents[incident.ID]
		stored.Status = domain.IncidentStatusResolved
		now := time.Now().UTC()
		stored.ResolvedAt = &now
		f.repo.service.Status = domain.ServiceStatusOperational
	}

	title := "database was down"
	updated, err := f.service.Update(ctx, "member", incident.ID, UpdateInput{Title: &title})
	require.NoError(t, err)

	assert.Equal(t, title, updated.Title)
	assert.True(t, updated.Status.IsResolved())
	assert.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, domain.ServiceStatusOperational, f.repo.service.Status)
}

func TestAddUpdate_StatusChange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityLow})
	require.NoError(t, err)

	update, err := f.service.AddUpdate(ctx, "member", incident.ID, AddUpdateInput{
		Status:  domain.IncidentStatusMonitoring,
		Message: "deployed a fix, watching",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusMonitoring, update.Status)

	got, err := f.service.Get(ctx, "member", incident.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusMonitoring, got.Status)
	assert.Equal(t, 1, f.notifier.updated)
}

func TestAddUpdate_ResolveViaStatusSetsResolvedAt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityCritical})
	require.NoError(t, err)

	_, err = f.service.AddUpdate(ctx, "member", incident.ID, AddUpdateInput{
		Status:  domain.IncidentStatusResolved,
		Message: "root cause fixed for good",
	})
	require.NoError(t, err)

	got, err := f.service.Get(ctx, "member", incident.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.IsResolved())
	assert.NotNil(t, got.ResolvedAt)
	assert.Equal(t, domain.ServiceStatusOperational, f.repo.service.Status)
}

func TestAddUpdate_ReopenResolvedNeedsAdmin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityHigh})
	require.NoError(t, err)
	_, err = f.service.Resolve(ctx, "member", incident.ID, "")
	require.NoError(t, err)

	_, err = f.service.AddUpdate(ctx, "member", incident.ID, AddUpdateInput{
		Status:  domain.IncidentStatusInvestigating,
		Message: "errors have come back",
	})
	assert.ErrorIs(t, err, access.ErrInsufficientRole)

	// Message-only append on a resolved incident stays member-level.
	_, err = f.service.AddUpdate(ctx, "member", incident.ID, AddUpdateInput{
		Message: "postmortem published here",
	})
	assert.NoError(t, err)

	// Admin may reopen; resolved_at is cleared and impact returns.
	_, err = f.service.AddUpdate(ctx, "admin", incident.ID, AddUpdateInput{
		Status:  domain.IncidentStatusInvestigating,
		Message: "errors have come back",
	})
	require.NoError(t, err)

	got, err := f.service.Get(ctx, "admin", incident.ID)
	require.NoError(t, err)
	assert.False(t, got.Status.IsResolved())
	assert.Nil(t, got.ResolvedAt)
	assert.Equal(t, domain.ServiceStatusPartialOutage, f.repo.service.Status)
}

func TestDelete_ResolvedWindow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityCritical})
	require.NoError(t, err)

	// Member cannot delete at all.
	assert.ErrorIs(t, f.service.Delete(ctx, "member", incident.ID), access.ErrInsufficientRole)

	_, err = f.service.Resolve(ctx, "member", incident.ID, "")
	require.NoError(t, err)

	// Resolved more than 24h ago: deletion is refused even for admin.
	old := time.Now().Add(-25 * time.Hour)
	f.repo.incidents[incident.ID].ResolvedAt = &old
	assert.ErrorIs(t, f.service.Delete(ctx, "admin", incident.ID), ErrTooOldToDelete)

	// Resolved an hour ago: deletable regardless of how long the
	// incident has existed.
	f.repo.incidents[incident.ID].CreatedAt = time.Now().Add(-72 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	f.repo.incidents[incident.ID].ResolvedAt = &recent
	require.NoError(t, f.service.Delete(ctx, "admin", incident.ID))

	_, err = f.service.Get(ctx, "admin", incident.ID)
	assert.ErrorIs(t, err, ErrIncidentNotFound)
}

func TestDelete_UnresolvedAtAnyAge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	incident, err := f.service.Create(ctx, "member", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityCritical})
	require.NoError(t, err)

	// An open incident has no deletion deadline.
	f.repo.incidents[incident.ID].CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.service.Delete(ctx, "admin", incident.ID))
	assert.Equal(t, domain.ServiceStatusOperational, f.repo.service.Status)
}

func TestCreate_EventsAndAuditCarryOrganization(t *testing.T) {
	f := newFixture()

	_, err := f.service.Create(context.Background(), "member", "svc-1", CreateInput{
		Title:    "database is down",
		Severity: domain.SeverityCritical,
	})
	require.NoError(t, err)

	require.NotEmpty(t, f.notifier.orgIDs)
	for _, orgID := range f.notifier.orgIDs {
		assert.Equal(t, "org-1", orgID)
	}
	require.NotEmpty(t, f.auditor.records)
	assert.Equal(t, "org-1", f.auditor.records[0].OrganizationID)
	assert.Equal(t, "team-1", f.auditor.records[0].TeamID)
}

func TestOwnerShortCircuit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// The org owner has no membership row yet acts with owner rights.
	incident, err := f.service.Create(ctx, "owner", "svc-1", CreateInput{Title: "database is down", Severity: domain.SeverityLow})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, "owner", incident.ID))
}
