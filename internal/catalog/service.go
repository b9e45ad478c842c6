// Package catalog manages organizations, teams, memberships and
// services, with role checks on every mutating operation.
package catalog

import (
	"context"
	"fmt"

	"github.com/bissquit/status-garden/internal/access"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/google/uuid"
)

// Notifier is the narrow notification interface the catalog consumes.
type Notifier interface {
	ServiceStatusChanged(ctx context.Context, service *domain.Service, orgID string, old, new domain.ServiceStatus)
}

// Auditor records audit entries for mutating operations.
type Auditor interface {
	Record(ctx context.Context, record *domain.AuditRecord)
}

// Service contains catalog business logic.
type Service struct {
	repo     Repository
	gate     *access.Gate
	notifier Notifier
	auditor  Auditor
}

// NewService creates a new catalog service.
func NewService(repo Repository, gate *access.Gate, notifier Notifier, auditor Auditor) *Service {
	return &Service{
		repo:     repo,
		gate:     gate,
		notifier: notifier,
		auditor:  auditor,
	}
}

// CreateOrganizationInput contains data for creating an organization.
type CreateOrganizationInput struct {
	Name string
	Slug string
}

// CreateOrganization creates an organization owned by the actor. Any
// authenticated principal may create one.
func (s *Service) CreateOrganization(ctx context.Context, actor string, input CreateOrganizationInput) (*domain.Organization, error) {
	org := &domain.Organization{
		ID:      uuid.NewString(),
		Name:    input.Name,
		Slug:    input.Slug,
		OwnerID: actor,
	}

	if err := s.repo.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: org.ID,
		Action:         "organization.create",
		ResourceType:   "organization",
		ResourceID:     org.ID,
		NewValues:      map[string]any{"name": org.Name, "slug": org.Slug},
	})

	return org, nil
}

// GetOrganization retrieves an organization. Visible to its owner and
// to members of any of its teams; everyone else sees not-found.
func (s *Service) GetOrganization(ctx context.Context, actor, orgID string) (*domain.Organization, error) {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if org.OwnerID != actor {
		member, err := s.repo.IsOrganizationMember(ctx, orgID, actor)
		if err != nil {
			return nil, fmt.Errorf("check organization membership: %w", err)
		}
		if !member {
			return nil, ErrOrganizationNotFound
		}
	}

	return org, nil
}

// DeleteOrganization removes an organization and, via cascade, its
// teams, memberships, services and their histories. Owner only.
func (s *Service) DeleteOrganization(ctx context.Context, actor, orgID string) error {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}

	if org.OwnerID != actor {
		member, err := s.repo.IsOrganizationMember(ctx, orgID, actor)
		if err != nil {
			return fmt.Errorf("check organization membership: %w", err)
		}
		if !member {
			return ErrOrganizationNotFound
		}
		return access.ErrInsufficientRole
	}

	if err := s.repo.DeleteOrganization(ctx, orgID); err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		Action:         "organization.delete",
		ResourceType:   "organization",
		ResourceID:     orgID,
	})

	return nil
}

// CreateTeamInput contains data for creating a team.
type CreateTeamInput struct {
	Name string
	Slug string
}

// CreateTeam creates a team in the organization. Restricted to the
// organization owner.
func (s *Service) CreateTeam(ctx context.Context, actor, orgID string, input CreateTeamInput) (*domain.Team, error) {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if org.OwnerID != actor {
		member, err := s.repo.IsOrganizationMember(ctx, orgID, actor)
		if err != nil {
			return nil, fmt.Errorf("check organization membership: %w", err)
		}
		if !member {
			return nil, ErrOrganizationNotFound
		}
		return nil, access.ErrInsufficientRole
	}

	team := &domain.Team{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           input.Name,
		Slug:           input.Slug,
	}

	if err := s.repo.CreateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         team.ID,
		Action:         "team.create",
		ResourceType:   "team",
		ResourceID:     team.ID,
		NewValues:      map[string]any{"name": team.Name, "slug": team.Slug},
	})

	return team, nil
}

// GetTeam retrieves a team visible to the actor.
func (s *Service) GetTeam(ctx context.Context, actor, teamID string) (*domain.Team, error) {
	if err := s.gate.RequireAccess(ctx, actor, teamID); err != nil {
		return nil, err
	}
	return s.repo.GetTeam(ctx, teamID)
}

// DeleteTeam removes a team. Requires admin.
func (s *Service) DeleteTeam(ctx context.Context, actor, teamID string) error {
	if err := s.gate.Authorize(ctx, actor, teamID, domain.RoleAdmin); err != nil {
		return err
	}

	team, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteTeam(ctx, teamID); err != nil {
		return fmt.Errorf("delete team: %w", err)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: team.OrganizationID,
		TeamID:         teamID,
		Action:         "team.delete",
		ResourceType:   "team",
		ResourceID:     teamID,
	})

	return nil
}

// UpsertMembership creates or updates a principal's role in a team.
// Requires admin, and the granted role is capped at the actor's own
// effective role.
func (s *Service) UpsertMembership(ctx context.Context, actor, teamID, principalID string, role domain.Role) (*domain.Membership, error) {
	if err := s.gate.Authorize(ctx, actor, teamID, domain.RoleAdmin); err != nil {
		return nil, err
	}

	if !role.IsValid() {
		return nil, ErrInvalidRole
	}

	actorRole, _, err := s.gate.ResolveRole(ctx, actor, teamID)
	if err != nil {
		return nil, err
	}
	if !actorRole.Satisfies(role) {
		return nil, ErrRoleExceedsGrantor
	}

	orgID, err := s.organizationID(ctx, teamID)
	if err != nil {
		return nil, err
	}

	membership := &domain.Membership{
		TeamID:      teamID,
		PrincipalID: principalID,
		Role:        role,
	}

	if err := s.repo.UpsertMembership(ctx, membership); err != nil {
		return nil, fmt.Errorf("upsert membership: %w", err)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         teamID,
		Action:         "membership.upsert",
		ResourceType:   "membership",
		ResourceID:     principalID,
		NewValues:      map[string]any{"role": string(role)},
	})

	return membership, nil
}

// RemoveMembership deletes a principal's membership. Requires admin.
func (s *Service) RemoveMembership(ctx context.Context, actor, teamID, principalID string) error {
	if err := s.gate.Authorize(ctx, actor, teamID, domain.RoleAdmin); err != nil {
		return err
	}

	orgID, err := s.organizationID(ctx, teamID)
	if err != nil {
		return err
	}

	deleted, err := s.repo.DeleteMembership(ctx, teamID, principalID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if !deleted {
		return ErrMembershipNotFound
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         teamID,
		Action:         "membership.remove",
		ResourceType:   "membership",
		ResourceID:     principalID,
	})

	return nil
}

// ListMemberships lists a team's memberships. Requires membership.
func (s *Service) ListMemberships(ctx context.Context, actor, teamID string) ([]domain.Membership, error) {
	if err := s.gate.RequireAccess(ctx, actor, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMemberships(ctx, teamID)
}

// CreateServiceInput contains data for creating a service.
type CreateServiceInput struct {
	Name        string
	Description string
	EntityType  string
}

// CreateService creates a service in the team. Requires admin. New
// services start operational and active.
func (s *Service) CreateService(ctx context.Context, actor, teamID string, input CreateServiceInput) (*domain.Service, error) {
	if err := s.gate.Authorize(ctx, actor, teamID, domain.RoleAdmin); err != nil {
		return nil, err
	}

	orgID, err := s.organizationID(ctx, teamID)
	if err != nil {
		return nil, err
	}

	entityType := input.EntityType
	if entityType == "" {
		entityType = "service"
	}

	service := &domain.Service{
		ID:           uuid.NewString(),
		TeamID:       teamID,
		Name:         input.Name,
		Description:  input.Description,
		Status:       domain.ServiceStatusOperational,
		EntityType:   entityType,
		ActiveStatus: domain.ActiveStatusActive,
	}

	if err := s.repo.CreateService(ctx, service); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         teamID,
		Action:         "service.create",
		ResourceType:   "service",
		ResourceID:     service.ID,
		NewValues:      map[string]any{"name": service.Name},
	})

	return service, nil
}

// GetService retrieves a service visible to the actor.
func (s *Service) GetService(ctx context.Context, actor, serviceID string) (*domain.Service, error) {
	service, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAccess(ctx, actor, service.TeamID); err != nil {
		return nil, err
	}
	return service, nil
}

// ListServices lists a team's services. Requires membership.
func (s *Service) ListServices(ctx context.Context, actor, teamID string) ([]domain.Service, error) {
	if err := s.gate.RequireAccess(ctx, actor, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListServices(ctx, teamID)
}

// UpdateServiceInput contains optional metadata fields; nil means keep.
type UpdateServiceInput struct {
	Name         *string
	Description  *string
	EntityType   *string
	ActiveStatus *domain.ActiveStatus
}

// UpdateService updates service metadata. Requires admin. The derived
// status field is never writable here.
func (s *Service) UpdateService(ctx context.Context, actor, serviceID string, input UpdateServiceInput) (*domain.Service, error) {
	service, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleAdmin); err != nil {
		return nil, err
	}

	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		service.Name = *input.Name
	}
	if input.Description != nil {
		service.Description = *input.Description
	}
	if input.EntityType != nil {
		service.EntityType = *input.EntityType
	}
	if input.ActiveStatus != nil {
		service.ActiveStatus = *input.ActiveStatus
	}

	if err := s.repo.UpdateService(ctx, service); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "service.update",
		ResourceType:   "service",
		ResourceID:     serviceID,
		NewValues:      map[string]any{"name": service.Name, "active_status": string(service.ActiveStatus)},
	})

	return service, nil
}

// DeleteService removes a service. Requires admin; refused while any
// incident is unresolved.
func (s *Service) DeleteService(ctx context.Context, actor, serviceID string) error {
	service, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleAdmin); err != nil {
		return err
	}

	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return err
	}

	open, err := s.repo.CountOpenIncidents(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("count open incidents: %w", err)
	}
	if open > 0 {
		return ErrServiceHasOpenIncidents
	}

	if err := s.repo.DeleteService(ctx, serviceID); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "service.delete",
		ResourceType:   "service",
		ResourceID:     serviceID,
		OldValues:      map[string]any{"name": service.Name},
	})

	return nil
}

// OverrideServiceStatus manually sets a service's stored status.
// Requires admin. The override holds until the next derivation run.
func (s *Service) OverrideServiceStatus(ctx context.Context, actor, serviceID string, status domain.ServiceStatus) (*domain.Service, error) {
	service, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleAdmin); err != nil {
		return nil, err
	}

	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	old := service.Status
	if err := s.repo.UpdateServiceStatus(ctx, serviceID, status); err != nil {
		return nil, fmt.Errorf("update service status: %w", err)
	}
	service.Status = status

	if old != status {
		s.notifier.ServiceStatusChanged(ctx, service, orgID, old, status)
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "service.status_override",
		ResourceType:   "service",
		ResourceID:     serviceID,
		OldValues:      map[string]any{"status": string(old)},
		NewValues:      map[string]any{"status": string(status)},
	})

	return service, nil
}

// organizationID resolves the organization owning a team, for the
// event and audit contracts that carry both ids.
func (s *Service) organizationID(ctx context.Context, teamID string) (string, error) {
	team, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return "", err
	}
	return team.OrganizationID, nil
}
