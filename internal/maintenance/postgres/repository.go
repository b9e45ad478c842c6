// Package postgres provides PostgreSQL implementation of the maintenance repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/maintenance"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const windowColumns = `id, service_id, title, description, scheduled_start, scheduled_end, actual_start, actual_end, status, created_by, created_at, updated_at`

// Repository implements the maintenance.Repository interface using PostgreSQL.
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

// GetWindow retrieves a maintenance window by id.
func (r *Repository) GetWindow(ctx context.Context, id string) (*domain.Maintenance, error) {
	query := `SELECT ` + windowColumns + ` FROM maintenance_windows WHERE id = $1`

	window, err := scanWindow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, maintenance.ErrWindowNotFound
		}
		return nil, fmt.Errorf("get maintenance window: %w", err)
	}
	return window, nil
}

// GetWindowTx retrieves a maintenance window inside the transaction.
func (r *Repository) GetWindowTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Maintenance, error) {
	query := `SELECT ` + windowColumns + ` FROM maintenance_windows WHERE id = $1`

	window, err := scanWindow(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, maintenance.ErrWindowNotFound
		}
		return nil, fmt.Errorf("get maintenance window: %w", err)
	}
	return window, nil
}

// ListWindows retrieves a service's maintenance windows, soonest first.
func (r *Repository) ListWindows(ctx context.Context, serviceID string) ([]*domain.Maintenance, error) {
	query := `
		SELECT ` + windowColumns + `
		FROM maintenance_windows
		WHERE service_id = $1
		ORDER BY scheduled_start ASC
	`
	rows, err := r.db.Query(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list maintenance windows: %w", err)
	}
	defer rows.Close()

	return scanWindows(rows)
}

// CreateWindowTx inserts a window inside the transaction.
func (r *Repository) CreateWindowTx(ctx context.Context, tx pgx.Tx, window *domain.Maintenance) error {
	query := `
		INSERT INTO maintenance_windows (id, service_id, title, description, scheduled_start, scheduled_end, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := tx.QueryRow(ctx, query,
		window.ID,
		window.ServiceID,
		window.Title,
		window.Description,
		window.ScheduledStart,
		window.ScheduledEnd,
		window.Status,
		window.CreatedBy,
	).Scan(&window.CreatedAt, &window.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create maintenance window: %w", err)
	}
	return nil
}

// UpdateWindowTx writes the window's mutable fields inside the transaction.
func (r *Repository) UpdateWindowTx(ctx context.Context, tx pgx.Tx, window *domain.Maintenance) error {
	query := `
		UPDATE maintenance_windows
		SET title = $2, description = $3, scheduled_start = $4, scheduled_end = $5,
			actual_start = $6, actual_end = $7, status = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		window.ID,
		window.Title,
		window.Description,
		window.ScheduledStart,
		window.ScheduledEnd,
		window.ActualStart,
		window.ActualEnd,
		window.Status,
	).Scan(&window.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return maintenance.ErrWindowNotFound
		}
		return fmt.Errorf("update maintenance window: %w", err)
	}
	return nil
}

// ListOverlappingTx returns non-cancelled windows of the service whose
// scheduled range overlaps [start, end), excluding excludeID when set.
func (r *Repository) ListOverlappingTx(ctx context.Context, tx pgx.Tx, serviceID string, start, end time.Time, excludeID string) ([]*domain.Maintenance, error) {
	query := `
		SELECT ` + windowColumns + `
		FROM maintenance_windows
		WHERE service_id = $1
		  AND status != 'cancelled'
		  AND scheduled_start < $3
		  AND scheduled_end > $2
	`
	args := []any{serviceID, start, end}
	if excludeID != "" {
		query += ` AND id != $4`
		args = append(args, excludeID)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list overlapping maintenance windows: %w", err)
	}
	defer rows.Close()

	return scanWindows(rows)
}

func scanWindow(row pgx.Row) (*domain.Maintenance, error) {
	var window domain.Maintenance
	err := row.Scan(
		&window.ID,
		&window.ServiceID,
		&window.Title,
		&window.Description,
		&window.ScheduledStart,
		&window.ScheduledEnd,
		&window.ActualStart,
		&window.ActualEnd,
		&window.Status,
		&window.CreatedBy,
		&window.CreatedAt,
		&window.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &window, nil
}

func scanWindows(rows pgx.Rows) ([]*domain.Maintenance, error) {
	out := make([]*domain.Maintenance, 0)
	for rows.Next() {
		window, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		out = append(out, window)
	}
	return out, rows.Err()
}
