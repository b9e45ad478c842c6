// Package postgres provides PostgreSQL implementation of the status repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/status-garden/internal/catalog"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository implements the status.Repository interface. It has no
// pool of its own; every method runs inside the caller's transaction.
type Repository struct{}

// NewRepository creates a new PostgreSQL repository.
func NewRepository() *Repository {
	return &Repository{}
}

// GetServiceStatusForUpdateTx reads the stored status and locks the
// service row until the transaction ends.
func (r *Repository) GetServiceStatusForUpdateTx(ctx context.Context, tx pgx.Tx, serviceID string) (domain.ServiceStatus, error) {
	var status domain.ServiceStatus
	err := tx.QueryRow(ctx, `SELECT status FROM services WHERE id = $1 FOR UPDATE`, serviceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", catalog.ErrServiceNotFound
		}
		return "", fmt.Errorf("lock service row: %w", err)
	}
	return status, nil
}

// ListUnresolvedIncidentsTx returns the service's unresolved incidents.
func (r *Repository) ListUnresolvedIncidentsTx(ctx context.Context, tx pgx.Tx, serviceID string) ([]*domain.Incident, error) {
	query := `
		SELECT id, status, severity
		FROM incidents
		WHERE service_id = $1 AND status != 'resolved'
	`
	rows, err := tx.Query(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list unresolved incidents: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Incident, 0)
	for rows.Next() {
		var incident domain.Incident
		if err := rows.Scan(&incident.ID, &incident.Status, &incident.Severity); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, &incident)
	}
	return out, rows.Err()
}

// ListInProgressMaintenanceTx returns the service's in-progress windows.
func (r *Repository) ListInProgressMaintenanceTx(ctx context.Context, tx pgx.Tx, serviceID string) ([]*domain.Maintenance, error) {
	query := `
		SELECT id, status
		FROM maintenance_windows
		WHERE service_id = $1 AND status = 'in_progress'
	`
	rows, err := tx.Query(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list in-progress maintenance: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Maintenance, 0)
	for rows.Next() {
		var window domain.Maintenance
		if err := rows.Scan(&window.ID, &window.Status); err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		out = append(out, &window)
	}
	return out, rows.Err()
}

// UpdateServiceStatusTx writes the derived status.
func (r *Repository) UpdateServiceStatusTx(ctx context.Context, tx pgx.Tx, serviceID string, status domain.ServiceStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE services SET status = $2, updated_at = now() WHERE id = $1`, serviceID, status)
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrServiceNotFound
	}
	return nil
}
