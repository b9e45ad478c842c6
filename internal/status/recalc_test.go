package status

import (
	"context"
	"testing"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing. The tx argument is
// ignored; tests pass nil.
type mockRepository struct {
	stored    domain.ServiceStatus
	incidents []*domain.Incident
	windows   []*domain.Maintenance

	updates []domain.ServiceStatus
}

func (m *mockRepository) GetServiceStatusForUpdateTx(_ context.Context, _ pgx.Tx, _ string) (domain.ServiceStatus, error) {
	return m.stored, nil
}

func (m *mockRepository) ListUnresolvedIncidentsTx(_ context.Context, _ pgx.Tx, _ string) ([]*domain.Incident, error) {
	return m.incidents, nil
}

func (m *mockRepository) ListInProgressMaintenanceTx(_ context.Context, _ pgx.Tx, _ string) ([]*domain.Maintenance, error) {
	return m.windows, nil
}

func (m *mockRepository) UpdateServiceStatusTx(_ context.Context, _ pgx.Tx, _ string, status domain.ServiceStatus) error {
	m.stored = status
	m.updates = append(m.updates, status)
	return nil
}

func TestRecalculateTx_WritesOnChange(t *testing.T) {
	repo := &mockRepository{
		stored: domain.ServiceStatusOperational,
		incidents: []*domain.Incident{
			{Status: domain.IncidentStatusInvestigating, Severity: domain.SeverityCritical},
		},
	}
	recalc := NewRecalculator(repo)

	result, err := recalc.RecalculateTx(context.Background(), nil, "svc-1")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, domain.ServiceStatusOperational, result.Old)
	assert.Equal(t, domain.ServiceStatusMajorOutage, result.New)
	assert.Equal(t, []domain.ServiceStatus{domain.ServiceStatusMajorOutage}, repo.updates)
}

func TestRecalculateTx_NoWriteWhenUnchanged(t *testing.T) {
	repo := &mockRepository{stored: domain.ServiceStatusOperational}
	recalc := NewRecalculator(repo)

	result, err := recalc.RecalculateTx(context.Background(), nil, "svc-1")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, repo.updates, "unchanged derivation must not write")

	// Second run over the same state is a visible no-op too.
	result, err = recalc.RecalculateTx(context.Background(), nil, "svc-1")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, repo.updates)
}

func TestRecalculateTx_ReturnsToOperational(t *testing.T) {
	repo := &mockRepository{stored: domain.ServiceStatusMajorOutage}
	recalc := NewRecalculator(repo)

	result, err := recalc.RecalculateTx(context.Background(), nil, "svc-1")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, domain.ServiceStatusOperational, result.New)
}
