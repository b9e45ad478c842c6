package status

import (
	"context"
	"fmt"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the snapshot reads and the status write the
// recalculator performs. All methods run inside the caller's
// transaction so the snapshot is consistent with the mutation that
// triggered the recalculation.
type Repository interface {
	// GetServiceStatusForUpdateTx reads the stored status and locks the
	// service row until the transaction ends.
	GetServiceStatusForUpdateTx(ctx context.Context, tx pgx.Tx, serviceID string) (domain.ServiceStatus, error)

	ListUnresolvedIncidentsTx(ctx context.Context, tx pgx.Tx, serviceID string) ([]*domain.Incident, error)
	ListInProgressMaintenanceTx(ctx context.Context, tx pgx.Tx, serviceID string) ([]*domain.Maintenance, error)

	UpdateServiceStatusTx(ctx context.Context, tx pgx.Tx, serviceID string, status domain.ServiceStatus) error
}

// Recalculator recomputes and stores a service's derived status.
type Recalculator struct {
	repo Repository
}

// NewRecalculator creates a new recalculator.
func NewRecalculator(repo Repository) *Recalculator {
	return &Recalculator{repo: repo}
}

// Result describes the outcome of a recalculation.
type Result struct {
	Old     domain.ServiceStatus
	New     domain.ServiceStatus
	Changed bool
}

// RecalculateTx recomputes the service's status inside tx. The service
// row is locked first so concurrent transitions against the same
// service serialize on the store even across processes. The write is
// skipped when the derived status equals the stored one, making
// repeated recalculation with unchanged inputs a no-op.
func (r *Recalculator) RecalculateTx(ctx context.Context, tx pgx.Tx, serviceID string) (Result, error) {
	current, err := r.repo.GetServiceStatusForUpdateTx(ctx, tx, serviceID)
	if err != nil {
		return Result{}, fmt.Errorf("lock service status: %w", err)
	}

	incidents, err := r.repo.ListUnresolvedIncidentsTx(ctx, tx, serviceID)
	if err != nil {
		return Result{}, fmt.Errorf("list unresolved incidents: %w", err)
	}

	windows, err := r.repo.ListInProgressMaintenanceTx(ctx, tx, serviceID)
	if err != nil {
		return Result{}, fmt.Errorf("list in-progress maintenance: %w", err)
	}

	derived := Derive(incidents, windows)
	recordDerivation(string(derived))

	result := Result{Old: current, New: derived, Changed: derived != current}
	if !result.Changed {
		return result, nil
	}

	if err := r.repo.UpdateServiceStatusTx(ctx, tx, serviceID, derived); err != nil {
		return Result{}, fmt.Errorf("update service status: %w", err)
	}
	return result, nil
}
