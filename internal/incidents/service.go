// Package incidents implements the incident lifecycle. Every mutation
// follows the same shape: authorize, validate, lock the service, run
// the change and the status recalculation in one transaction, then
// emit notifications and audit records after commit.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/status-garden/internal/access"
	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/keyedmutex"
	"github.com/bissquit/status-garden/internal/status"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// deleteWindow is how long after resolution a resolved incident may
// still be deleted. Unresolved incidents are deletable at any age.
const deleteWindow = 24 * time.Hour

// Notifier is the narrow notification interface the lifecycle consumes.
type Notifier interface {
	IncidentCreated(ctx context.Context, incident *domain.Incident, teamID, orgID string)
	IncidentUpdated(ctx context.Context, incident *domain.Incident, teamID, orgID string, old domain.IncidentStatus)
	ServiceStatusChanged(ctx context.Context, service *domain.Service, orgID string, old, new domain.ServiceStatus)
}

// Auditor records audit entries for mutating operations.
type Auditor interface {
	Record(ctx context.Context, record *domain.AuditRecord)
}

// Service contains incident business logic.
type Service struct {
	repo     Repository
	services ServiceReader
	gate     *access.Gate
	recalc   *status.Recalculator
	locks    *keyedmutex.KeyedMutex
	notifier Notifier
	auditor  Auditor
}

// NewService creates a new incident service.
func NewService(repo Repository, services ServiceReader, gate *access.Gate, recalc *status.Recalculator, locks *keyedmutex.KeyedMutex, notifier Notifier, auditor Auditor) *Service {
	return &Service{
		repo:     repo,
		services: services,
		gate:     gate,
		recalc:   recalc,
		locks:    locks,
		notifier: notifier,
		auditor:  auditor,
	}
}

// CreateInput contains data for opening an incident.
type CreateInput struct {
	Title       string
	Description string
	Severity    domain.IncidentSeverity
	Message     string // optional initial timeline entry
}

// Create opens an incident against a service. Requires member.
func (s *Service) Create(ctx context.Context, actor, serviceID string, input CreateInput) (*domain.Incident, error) {
	service, err := s.services.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleMember); err != nil {
		return nil, err
	}
	if !input.Severity.IsValid() {
		return nil, ErrInvalidSeverity
	}
	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	incident := &domain.Incident{
		ID:          uuid.NewString(),
		ServiceID:   serviceID,
		Title:       input.Title,
		Description: input.Description,
		Status:      domain.IncidentStatusInvestigating,
		Severity:    input.Severity,
		CreatedBy:   actor,
	}

	unlock := s.locks.Lock(serviceID)
	defer unlock()

	var result status.Result
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.CreateIncidentTx(ctx, tx, incident); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}

		if input.Message != "" {
			update := &domain.IncidentUpdate{
				ID:         uuid.NewString(),
				IncidentID: incident.ID,
				Status:     incident.Status,
				Message:    input.Message,
				CreatedBy:  actor,
			}
			if err := s.repo.CreateUpdateTx(ctx, tx, update); err != nil {
				return fmt.Errorf("create initial update: %w", err)
			}
		}

		result, err = s.recalc.RecalculateTx(ctx, tx, serviceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordIncidentCreated(string(incident.Severity))

	s.notifier.IncidentCreated(ctx, incident, service.TeamID, orgID)
	s.notifyStatusChange(ctx, service, orgID, result)
	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "incident.create",
		ResourceType:   "incident",
		ResourceID:     incident.ID,
		NewValues:      map[string]any{"title": incident.Title, "severity": string(incident.Severity)},
	})

	return incident, nil
}

// Get retrieves an incident visible to the actor.
func (s *Service) Get(ctx context.Context, actor, incidentID string) (*domain.Incident, error) {
	incident, service, err := s.load(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAccess(ctx, actor, service.TeamID); err != nil {
		return nil, err
	}
	return incident, nil
}

// List lists a service's incidents, newest first. Requires membership.
func (s *Service) List(ctx context.Context, actor, serviceID string) ([]*domain.Incident, error) {
	service, err := s.services.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAccess(ctx, actor, service.TeamID); err != nil {
		return nil, err
	}
	return s.repo.ListIncidents(ctx, serviceID)
}

// ListUpdates returns the incident's timeline, oldest first.
func (s *Service) ListUpdates(ctx context.Context, actor, incidentID string) ([]domain.IncidentUpdate, error) {
	_, service, err := s.load(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAccess(ctx, actor, service.TeamID); err != nil {
		return nil, err
	}
	return s.repo.ListUpdates(ctx, incidentID)
}

// UpdateInput contains optional incident fields; nil keeps.
type UpdateInput struct {
	Title       *string
	Description *string
	Severity    *domain.IncidentSeverity
	Status      *domain.IncidentStatus
}

// Update edits an incident. Requires member; editing a resolved
// incident requires admin. A status change appends a templated
// timeline entry, and a status or severity change recalculates the
// service's status.
func (s *Service) Update(ctx context.Context, actor, incidentID string, input UpdateInput) (*domain.Incident, error) {
	incident, service, err := s.load(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	required := domain.RoleMember
	if incident.Status.IsResolved() {
		required = domain.RoleAdmin
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, required); err != nil {
		return nil, err
	}

	if input.Severity != nil && !input.Severity.IsValid() {
		return nil, ErrInvalidSeverity
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(incident.ServiceID)
	defer unlock()

	var (
		result        status.Result
		oldStatus     domain.IncidentStatus
		oldSeverity   domain.IncidentSeverity
		statusChanged bool
	)
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		// Work on a fresh copy: another request may have committed a
		// transition between the load above and taking the lock.
		current, err := s.repo.GetIncidentTx(ctx, tx, incidentID)
		if err != nil {
			return err
		}
		oldStatus, oldSeverity = current.Status, current.Severity

		if input.Title != nil {
			current.Title = *input.Title
		}
		if input.Description != nil {
			current.Description = *input.Description
		}
		if input.Severity != nil {
			current.Severity = *input.Severity
		}
		if input.Status != nil && *input.Status != current.Status {
			current.Status = *input.Status
			statusChanged = true
			s.applyResolutionInvariant(current)
		}

		if err := s.repo.UpdateIncidentTx(ctx, tx, current); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}

		if statusChanged {
			entry := &domain.IncidentUpdate{
				ID:         uuid.NewString(),
				IncidentID: current.ID,
				Status:     current.Status,
				Message:    statusChangeMessage(current.Status),
				CreatedBy:  actor,
			}
			if err := s.repo.CreateUpdateTx(ctx, tx, entry); err != nil {
				return fmt.Errorf("create status change update: %w", err)
			}
		}

		result, err = s.recalc.RecalculateTx(ctx, tx, current.ServiceID)
		incident = current
		return err
	})
	if err != nil {
		return nil, err
	}

	if statusChanged {
		if incident.Status.IsResolved() {
			recordResolutionDuration(time.Since(incident.CreatedAt))
		}
		s.notifier.IncidentUpdated(ctx, incident, service.TeamID, orgID, oldStatus)
	}
	s.notifyStatusChange(ctx, service, orgID, result)
	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "incident.update",
		ResourceType:   "incident",
		ResourceID:     incident.ID,
		OldValues:      map[string]any{"status": string(oldStatus), "severity": string(oldSeverity)},
		NewValues:      map[string]any{"status": string(incident.Status), "severity": string(incident.Severity)},
	})

	return incident, nil
}

// AddUpdateInput contains data for a timeline entry.
type AddUpdateInput struct {
	Status  domain.IncidentStatus // empty keeps the current status
	Message string
}

// AddUpdate appends a timeline entry, optionally moving the incident
// to a new status. Message-only appends require member; an entry that
// changes the status of a resolved incident requires admin.
func (s *Service) AddUpdate(ctx context.Context, actor, incidentID string, input AddUpdateInput) (*domain.IncidentUpdate, error) {
	incident, service, err := s.load(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if input.Status != "" && !input.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	required := domain.RoleMember
	if incident.Status.IsResolved() && input.Status != "" && input.Status != incident.Status {
		required = domain.RoleAdmin
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, required); err != nil {
		return nil, err
	}
	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(incident.ServiceID)
	defer unlock()

	var (
		result       status.Result
		oldStatus    domain.IncidentStatus
		statusChange bool
		update       *domain.IncidentUpdate
	)
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := s.repo.GetIncidentTx(ctx, tx, incidentID)
		if err != nil {
			return err
		}
		oldStatus = current.Status

		newStatus := input.Status
		if newStatus == "" {
			newStatus = current.Status
		}
		statusChange = newStatus != current.Status
		if statusChange {
			current.Status = newStatus
			s.applyResolutionInvariant(current)
			if err := s.repo.UpdateIncidentTx(ctx, tx, current); err != nil {
				return fmt.Errorf("update incident status: %w", err)
			}
		}

		update = &domain.IncidentUpdate{
			ID:         uuid.NewString(),
			IncidentID: current.ID,
			Status:     newStatus,
			Message:    input.Message,
			CreatedBy:  actor,
		}
		if err := s.repo.CreateUpdateTx(ctx, tx, update); err != nil {
			return fmt.Errorf("create update: %w", err)
		}

		result, err = s.recalc.RecalculateTx(ctx, tx, current.ServiceID)
		incident = current
		return err
	})
	if err != nil {
		return nil, err
	}

	if statusChange {
		if incident.Status.IsResolved() {
			recordResolutionDuration(time.Since(incident.CreatedAt))
		}
		s.notifier.IncidentUpdated(ctx, incident, service.TeamID, orgID, oldStatus)
	}
	s.notifyStatusChange(ctx, service, orgID, result)
	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "incident.add_update",
		ResourceType:   "incident",
		ResourceID:     incident.ID,
		OldValues:      map[string]any{"status": string(oldStatus)},
		NewValues:      map[string]any{"status": string(incident.Status)},
	})

	return update, nil
}

// Resolve marks the incident resolved, appends a timeline entry, and
// releases its impact on the service status. Requires member.
func (s *Service) Resolve(ctx context.Context, actor, incidentID, message string) (*domain.Incident, error) {
	incident, service, err := s.load(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleMember); err != nil {
		return nil, err
	}
	if incident.Status.IsResolved() {
		return nil, ErrAlreadyResolved
	}
	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(incident.ServiceID)
	defer unlock()

	var (
		result    status.Result
		oldStatus domain.IncidentStatus
	)
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := s.repo.GetIncidentTx(ctx, tx, incidentID)
		if err != nil {
			return err
		}
		if current.Status.IsResolved() {
			return ErrAlreadyResolved
		}
		oldStatus = current.Status
		current.Status = domain.IncidentStatusResolved
		s.applyResolutionInvariant(current)

		if err := s.repo.UpdateIncidentTx(ctx, tx, current); err != nil {
			return fmt.Errorf("resolve incident: %w", err)
		}

		entryMessage := message
		if entryMessage == "" {
			entryMessage = fmt.Sprintf("Incident resolved (was %s)", oldStatus)
		}
		update := &domain.IncidentUpdate{
			ID:         uuid.NewString(),
			IncidentID: current.ID,
			Status:     domain.IncidentStatusResolved,
			Message:    entryMessage,
			CreatedBy:  actor,
		}
		if err := s.repo.CreateUpdateTx(ctx, tx, update); err != nil {
			return fmt.Errorf("create resolution update: %w", err)
		}

		result, err = s.recalc.RecalculateTx(ctx, tx, current.ServiceID)
		incident = current
		return err
	})
	if err != nil {
		return nil, err
	}

	recordResolutionDuration(time.Since(incident.CreatedAt))

	s.notifier.IncidentUpdated(ctx, incident, service.TeamID, orgID, oldStatus)
	s.notifyStatusChange(ctx, service, orgID, result)
	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "incident.resolve",
		ResourceType:   "incident",
		ResourceID:     incident.ID,
		OldValues:      map[string]any{"status": string(oldStatus)},
		NewValues:      map[string]any{"status": string(domain.IncidentStatusResolved)},
	})

	return incident, nil
}

// Delete removes an incident and its timeline. Requires admin. A
// resolved incident may only be deleted within 24 hours of its
// resolution; unresolved incidents are deletable at any age.
func (s *Service) Delete(ctx context.Context, actor, incidentID string) error {
	incident, service, err := s.load(ctx, incidentID)
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

	unlock := s.locks.Lock(incident.ServiceID)
	defer unlock()

	var result status.Result
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := s.repo.GetIncidentTx(ctx, tx, incidentID)
		if err != nil {
			return err
		}
		if current.Status.IsResolved() && current.ResolvedAt != nil && time.Since(*current.ResolvedAt) > deleteWindow {
			return ErrTooOldToDelete
		}
		incident = current

		if err := s.repo.DeleteIncidentTx(ctx, tx, incidentID); err != nil {
			return fmt.Errorf("delete incident: %w", err)
		}
		result, err = s.recalc.RecalculateTx(ctx, tx, current.ServiceID)
		return err
	})
	if err != nil {
		return err
	}

	s.notifyStatusChange(ctx, service, orgID, result)
	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "incident.delete",
		ResourceType:   "incident",
		ResourceID:     incidentID,
		OldValues:      map[string]any{"title": incident.Title},
	})

	return nil
}

// applyResolutionInvariant keeps resolved_at in lockstep with the
// resolved status: set exactly when resolved, cleared otherwise.
func (s *Service) applyResolutionInvariant(incident *domain.Incident) {
	if incident.Status.IsResolved() {
		if incident.ResolvedAt == nil {
			now := time.Now().UTC()
			incident.ResolvedAt = &now
		}
	} else {
		incident.ResolvedAt = nil
	}
}

// statusChangeMessage is the templated timeline entry written for a
// status change made without a caller-supplied message.
func statusChangeMessage(status domain.IncidentStatus) string {
	switch status {
	case domain.IncidentStatusInvestigating:
		return "Incident is under investigation"
	case domain.IncidentStatusIdentified:
		return "The cause of the incident has been identified"
	case domain.IncidentStatusMonitoring:
		return "A fix is in place and the service is being monitored"
	case domain.IncidentStatusResolved:
		return "Incident resolved"
	default:
		return fmt.Sprintf("Status changed to %s", status)
	}
}

func (s *Service) load(ctx context.Context, incidentID string) (*domain.Incident, *domain.Service, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, nil, err
	}
	service, err := s.services.GetService(ctx, incident.ServiceID)
	if err != nil {
		return nil, nil, err
	}
	return incident, service, nil
}

// organizationID resolves the organization owning a team, for the
// event and audit contracts that carry both ids.
func (s *Service) organizationID(ctx context.Context, teamID string) (string, error) {
	team, err := s.services.GetTeam(ctx, teamID)
	if err != nil {
		return "", err
	}
	return team.OrganizationID, nil
}

func (s *Service) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Service) notifyStatusChange(ctx context.Context, service *domain.Service, orgID string, result status.Result) {
	if !result.Changed {
		return
	}
	service.Status = result.New
	s.notifier.ServiceStatusChanged(ctx, service, orgID, result.Old, result.New)
}
