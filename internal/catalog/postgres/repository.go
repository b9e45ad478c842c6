// Package postgres provides PostgreSQL implementation of the catalog repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository implements the catalog.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateOrganization inserts a new organization.
func (r *Repository) CreateOrganization(ctx context.Context, org *domain.Organization) error {
	query := `
		INSERT INTO organizations (id, name, slug, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		org.ID,
		org.Name,
		org.Slug,
		org.OwnerID,
	).Scan(&org.CreatedAt, &org.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrSlugTaken
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// GetOrganization retrieves an organization by id.
func (r *Repository) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	query := `
		SELECT id, name, slug, owner_id, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	var org domain.Organization
	err := r.db.QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Slug,
		&org.OwnerID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

// DeleteOrganization removes an organization. Teams, memberships,
// services and their histories go with it via ON DELETE CASCADE.
func (r *Repository) DeleteOrganization(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrOrganizationNotFound
	}
	return nil
}

// IsOrganizationMember reports whether the principal belongs to any
// team of the organization.
func (r *Repository) IsOrganizationMember(ctx context.Context, orgID, principalID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM memberships m
			JOIN teams t ON t.id = m.team_id
			WHERE t.organization_id = $1 AND m.principal_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, orgID, principalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check organization membership: %w", err)
	}
	return exists, nil
}

// CreateTeam inserts a new team.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	query := `
		INSERT INTO teams (id, organization_id, name, slug)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		team.ID,
		team.OrganizationID,
		team.Name,
		team.Slug,
	).Scan(&team.CreatedAt, &team.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrSlugTaken
		}
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by id.
func (r *Repository) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	query := `
		SELECT id, organization_id, name, slug, created_at, updated_at
		FROM teams
		WHERE id = $1
	`
	var team domain.Team
	err := r.db.QueryRow(ctx, query, id).Scan(
		&team.ID,
		&team.OrganizationID,
		&team.Name,
		&team.Slug,
		&team.CreatedAt,
		&team.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrTeamNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return &team, nil
}

// DeleteTeam removes a team and cascades to memberships and services.
func (r *Repository) DeleteTeam(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrTeamNotFound
	}
	return nil
}

// UpsertMembership inserts or updates the principal's role in a team.
func (r *Repository) UpsertMembership(ctx context.Context, membership *domain.Membership) error {
	query := `
		INSERT INTO memberships (team_id, principal_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (team_id, principal_id)
		DO UPDATE SET role = EXCLUDED.role, updated_at = now()
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		membership.TeamID,
		membership.PrincipalID,
		membership.Role,
	).Scan(&membership.CreatedAt, &membership.UpdatedAt)

	if err != nil {
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

// DeleteMembership removes a membership. Returns false when none existed.
func (r *Repository) DeleteMembership(ctx context.Context, teamID, principalID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM memberships WHERE team_id = $1 AND principal_id = $2`,
		teamID, principalID,
	)
	if err != nil {
		return false, fmt.Errorf("delete membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListMemberships retrieves a team's memberships ordered by principal.
func (r *Repository) ListMemberships(ctx context.Context, teamID string) ([]domain.Membership, error) {
	query := `
		SELECT team_id, principal_id, role, created_at, updated_at
		FROM memberships
		WHERE team_id = $1
		ORDER BY principal_id
	`
	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]domain.Membership, 0)
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.TeamID, &m.PrincipalID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// CreateService inserts a new service.
func (r *Repository) CreateService(ctx context.Context, service *domain.Service) error {
	query := `
		INSERT INTO services (id, team_id, name, description, status, entity_type, active_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.ID,
		service.TeamID,
		service.Name,
		service.Description,
		service.Status,
		service.EntityType,
		service.ActiveStatus,
	).Scan(&service.CreatedAt, &service.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrServiceNameTaken
		}
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// GetService retrieves a service by id.
func (r *Repository) GetService(ctx context.Context, id string) (*domain.Service, error) {
	query := `
		SELECT id, team_id, name, description, status, entity_type, active_status, created_at, updated_at
		FROM services
		WHERE id = $1
	`
	var service domain.Service
	err := r.db.QueryRow(ctx, query, id).Scan(
		&service.ID,
		&service.TeamID,
		&service.Name,
		&service.Description,
		&service.Status,
		&service.EntityType,
		&service.ActiveStatus,
		&service.CreatedAt,
		&service.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &service, nil
}

// ListServices retrieves a team's services ordered by name.
func (r *Repository) ListServices(ctx context.Context, teamID string) ([]domain.Service, error) {
	query := `
		SELECT id, team_id, name, description, status, entity_type, active_status, created_at, updated_at
		FROM services
		WHERE team_id = $1
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		var s domain.Service
		err := rows.Scan(
			&s.ID,
			&s.TeamID,
			&s.Name,
			&s.Description,
			&s.Status,
			&s.EntityType,
			&s.ActiveStatus,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// UpdateService updates service metadata. Status is written only by
// UpdateServiceStatus and the recalculator.
func (r *Repository) UpdateService(ctx context.Context, service *domain.Service) error {
	query := `
		UPDATE services
		SET name = $2, description = $3, entity_type = $4, active_status = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.ID,
		service.Name,
		service.Description,
		service.EntityType,
		service.ActiveStatus,
	).Scan(&service.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrServiceNotFound
		}
		if isUniqueViolation(err) {
			return catalog.ErrServiceNameTaken
		}
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

// DeleteService removes a service and cascades to its incidents and
// maintenance windows.
func (r *Repository) DeleteService(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrServiceNotFound
	}
	return nil
}

// UpdateServiceStatus sets the stored status directly.
func (r *Repository) UpdateServiceStatus(ctx context.Context, serviceID string, status domain.ServiceStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE services SET status = $2, updated_at = now() WHERE id = $1`,
		serviceID, status,
	)
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrServiceNotFound
	}
	return nil
}

// CountOpenIncidents counts unresolved incidents for a service.
func (r *Repository) CountOpenIncidents(ctx context.Context, serviceID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM incidents WHERE service_id = $1 AND status != 'resolved'`,
		serviceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open incidents: %w", err)
	}
	return count, nil
}
