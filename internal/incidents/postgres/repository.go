// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the incidents.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// BeginTx starts a transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// GetIncident retrieves an incident by id.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, service_id, title, description, status, severity, created_by, created_at, updated_at, resolved_at
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.ServiceID,
		&incident.Title,
		&incident.Description,
		&incident.Status,
		&incident.Severity,
		&incident.CreatedBy,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &incident, nil
}

// ListIncidents retrieves a service's incidents, newest first.
func (r *Repository) ListIncidents(ctx context.Context, serviceID string) ([]*domain.Incident, error) {
	query := `
		SELECT id, service_id, title, description, status, severity, created_by, created_at, updated_at, resolved_at
		FROM incidents
		WHERE service_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// ListUpdates retrieves an incident's timeline entries, oldest first.
func (r *Repository) ListUpdates(ctx context.Context, incidentID string) ([]domain.IncidentUpdate, error) {
	query := `
		SELECT id, incident_id, status, message, created_by, created_at
		FROM incident_updates
		WHERE incident_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list incident updates: %w", err)
	}
	defer rows.Close()

	updates := make([]domain.IncidentUpdate, 0)
	for rows.Next() {
		var u domain.IncidentUpdate
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.Status, &u.Message, &u.CreatedBy, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident update: %w", err)
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// GetIncidentTx retrieves an incident inside the transaction.
func (r *Repository) GetIncidentTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error) {
	query := `
		SELECT id, service_id, title, description, status, severity, created_by, created_at, updated_at, resolved_at
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := tx.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.ServiceID,
		&incident.Title,
		&incident.Description,
		&incident.Status,
		&incident.Severity,
		&incident.CreatedBy,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return &incident, nil
}

// CreateIncidentTx inserts an incident inside the transaction.
func (r *Repository) CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (id, service_id, title, description, status, severity, created_by, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		incident.ID,
		incident.ServiceID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Severity,
		incident.CreatedBy,
		incident.ResolvedAt,
	).Scan(&incident.CreatedAt, &incident.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// UpdateIncidentTx writes the incident's mutable fields inside the
// transaction.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET title = $2, description = $3, status = $4, severity = $5, resolved_at = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		incident.ID,
		incident.Title,
		incident.Description,
		incident.Status,
		incident.Severity,
		incident.ResolvedAt,
	).Scan(&incident.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// DeleteIncidentTx removes an incident; its updates cascade.
func (r *Repository) DeleteIncidentTx(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// CreateUpdateTx appends a timeline entry inside the transaction.
func (r *Repository) CreateUpdateTx(ctx context.Context, tx pgx.Tx, update *domain.IncidentUpdate) error {
	query := `
		INSERT INTO incident_updates (id, incident_id, status, message, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query,
		update.ID,
		update.IncidentID,
		update.Status,
		update.Message,
		update.CreatedBy,
	).Scan(&update.CreatedAt)

	if err != nil {
		return fmt.Errorf("create incident update: %w", err)
	}
	return nil
}

func scanIncidents(rows pgx.Rows) ([]*domain.Incident, error) {
	out := make([]*domain.Incident, 0)
	for rows.Next() {
		var incident domain.Incident
		err := rows.Scan(
			&incident.ID,
			&incident.ServiceID,
			&incident.Title,
			&incident.Description,
			&incident.Status,
			&incident.Severity,
			&incident.CreatedBy,
			&incident.CreatedAt,
			&incident.UpdatedAt,
			&incident.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, &incident)
	}
	return out, rows.Err()
}
