package catalog

import (
	"context"

	"github.com/bissquit/status-garden/internal/domain"
)

// Repository defines the interface for catalog data operations.
type Repository interface {
	CreateOrganization(ctx context.Context, org *domain.Organization) error
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
	DeleteOrganization(ctx context.Context, id string) error
	// IsOrganizationMember reports whether the principal holds a
	// membership in any team of the organization.
	IsOrganizationMember(ctx context.Context, orgID, principalID string) (bool, error)

	CreateTeam(ctx context.Context, team *domain.Team) error
	GetTeam(ctx context.Context, id string) (*domain.Team, error)
	DeleteTeam(ctx context.Context, id string) error

	UpsertMembership(ctx context.Context, membership *domain.Membership) error
	DeleteMembership(ctx context.Context, teamID, principalID string) (bool, error)
	ListMemberships(ctx context.Context, teamID string) ([]domain.Membership, error)

	CreateService(ctx context.Context, service *domain.Service) error
	GetService(ctx context.Context, id string) (*domain.Service, error)
	ListServices(ctx context.Context, teamID string) ([]domain.Service, error)
	UpdateService(ctx context.Context, service *domain.Service) error
	DeleteService(ctx context.Context, id string) error
	UpdateServiceStatus(ctx context.Context, serviceID string, status domain.ServiceStatus) error

	CountOpenIncidents(ctx context.Context, serviceID string) (int, error)
}
