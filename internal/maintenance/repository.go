package maintenance

import (
	"context"
	"time"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for maintenance data operations.
type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)

	GetWindow(ctx context.Context, id string) (*domain.Maintenance, error)
	ListWindows(ctx context.Context, serviceID string) ([]*domain.Maintenance, error)

	// GetWindowTx re-reads the window inside the mutation transaction,
	// so transitions validate against state committed after the service
	// lock was taken.
	GetWindowTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Maintenance, error)
	CreateWindowTx(ctx context.Context, tx pgx.Tx, window *domain.Maintenance) error
	UpdateWindowTx(ctx context.Context, tx pgx.Tx, window *domain.Maintenance) error

	// ListOverlappingTx returns non-cancelled windows of the service
	// whose scheduled range overlaps [start, end), excluding excludeID
	// when non-empty. Runs in the caller's transaction so the check and
	// the subsequent write see the same state.
	ListOverlappingTx(ctx context.Context, tx pgx.Tx, serviceID string, start, end time.Time, excludeID string) ([]*domain.Maintenance, error)
}

// ServiceReader resolves a service and its owning team for gating,
// recalculation and event scoping. The catalog repository satisfies it.
type ServiceReader interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
	GetTeam(ctx context.Context, id string) (*domain.Team, error)
}
