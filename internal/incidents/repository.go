package incidents

import (
	"context"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for incident data operations.
// Mutations run inside a transaction together with the status
// recalculation they trigger.
type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)

	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, serviceID string) ([]*domain.Incident, error)
	ListUpdates(ctx context.Context, incidentID string) ([]domain.IncidentUpdate, error)

	// GetIncidentTx re-reads the incident inside the mutation
	// transaction, so writes never start from a copy loaded before
	// the service lock was taken.
	GetIncidentTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Incident, error)
	CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	DeleteIncidentTx(ctx context.Context, tx pgx.Tx, id string) error
	CreateUpdateTx(ctx context.Context, tx pgx.Tx, update *domain.IncidentUpdate) error
}

// ServiceReader resolves a service and its owning team for gating,
// recalculation and event scoping. The catalog repository satisfies it.
type ServiceReader interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
	GetTeam(ctx context.Context, id string) (*domain.Team, error)
}
