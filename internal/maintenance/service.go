// Package maintenance implements the maintenance window lifecycle.
// Transitions follow the same shape as incidents: authorize, validate,
// lock the service, mutate and recalculate in one transaction, then
// notify and audit after commit.
package maintenance

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

// Notifier is the narrow notification interface the lifecycle consumes.
type Notifier interface {
	MaintenanceScheduled(ctx context.Context, window *domain.Maintenance, teamID, orgID string)
	ServiceStatusChanged(ctx context.Context, service *domain.Service, orgID string, old, new domain.ServiceStatus)
}

// Auditor records audit entries for mutating operations.
type Auditor interface {
	Record(ctx context.Context, record *domain.AuditRecord)
}

// Service contains maintenance business logic.
type Service struct {
	repo     Repository
	services ServiceReader
	gate     *access.Gate
	recalc   *status.Recalculator
	locks    *keyedmutex.KeyedMutex
	notifier Notifier
	auditor  Auditor
}

// NewService creates a new maintenance service.
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

// CreateInput contains data for scheduling a maintenance window.
type CreateInput struct {
	Title          string
	Description    string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
}

// Create schedules a maintenance window. Requires admin. The window
// must lie in the future and must not overlap another non-cancelled
// window of the same service; the overlap check runs inside the insert
// transaction under the service lock.
func (s *Service) Create(ctx context.Context, actor, serviceID string, input CreateInput) (*domain.Maintenance, error) {
	service, err := s.services.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleAdmin); err != nil {
		return nil, err
	}

	now := time.Now()
	if !input.ScheduledStart.After(now) {
		return nil, fmt.Errorf("%w: scheduled start must be in the future", ErrInvalidSchedule)
	}
	if !input.ScheduledEnd.After(input.ScheduledStart) {
		return nil, fmt.Errorf("%w: scheduled end must be after start", ErrInvalidSchedule)
	}

	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	window := &domain.Maintenance{
		ID:             uuid.NewString(),
		ServiceID:      serviceID,
		Title:          input.Title,
		Description:    input.Description,
		ScheduledStart: input.ScheduledStart,
		ScheduledEnd:   input.ScheduledEnd,
		Status:         domain.MaintenanceStatusScheduled,
		CreatedBy:      actor,
	}

	unlock := s.locks.Lock(serviceID)
	defer unlock()

	err = s.withTx(ctx, func(tx pgx.Tx) error {
		overlapping, err := s.repo.ListOverlappingTx(ctx, tx, serviceID, window.ScheduledStart, window.ScheduledEnd, "")
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if len(overlapping) > 0 {
			return ErrWindowOverlap
		}
		return s.repo.CreateWindowTx(ctx, tx, window)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.MaintenanceScheduled(ctx, window, service.TeamID, orgID)
	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "maintenance.create",
		ResourceType:   "maintenance",
		ResourceID:     window.ID,
		NewValues: map[string]any{
			"title":           window.Title,
			"scheduled_start": window.ScheduledStart,
			"scheduled_end":   window.ScheduledEnd,
		},
	})

	return window, nil
}

// Get retrieves a maintenance window visible to the actor.
func (s *Service) Get(ctx context.Context, actor, windowID string) (*domain.Maintenance, error) {
	window, service, err := s.load(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAccess(ctx, actor, service.TeamID); err != nil {
		return nil, err
	}
	return window, nil
}

// List lists a service's maintenance windows. Requires membership.
func (s *Service) List(ctx context.Context, actor, serviceID string) ([]*domain.Maintenance, error) {
	service, err := s.services.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.RequireAccess(ctx, actor, service.TeamID); err != nil {
		return nil, err
	}
	return s.repo.ListWindows(ctx, serviceID)
}

// UpdateInput contains editable window fields; nil keeps.
type UpdateInput struct {
	Title          *string
	Description    *string
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
}

// Update edits a window. Requires admin, and only scheduled windows
// are editable. A schedule change re-runs the overlap check excluding
// the window itself.
func (s *Service) Update(ctx context.Context, actor, windowID string, input UpdateInput) (*domain.Maintenance, error) {
	loaded, service, err := s.load(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(loaded.ServiceID)
	defer unlock()

	var window *domain.Maintenance
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		// Edit a fresh copy: the window may have transitioned between
		// the load above and taking the lock.
		current, err := s.repo.GetWindowTx(ctx, tx, windowID)
		if err != nil {
			return err
		}
		if current.Status != domain.MaintenanceStatusScheduled {
			return ErrNotEditable
		}

		if input.Title != nil {
			current.Title = *input.Title
		}
		if input.Description != nil {
			current.Description = *input.Description
		}
		rescheduled := input.ScheduledStart != nil || input.ScheduledEnd != nil
		if input.ScheduledStart != nil {
			current.ScheduledStart = *input.ScheduledStart
		}
		if input.ScheduledEnd != nil {
			current.ScheduledEnd = *input.ScheduledEnd
		}

		if rescheduled {
			if !current.ScheduledStart.After(time.Now()) {
				return fmt.Errorf("%w: scheduled start must be in the future", ErrInvalidSchedule)
			}
			if !current.ScheduledEnd.After(current.ScheduledStart) {
				return fmt.Errorf("%w: scheduled end must be after start", ErrInvalidSchedule)
			}
			overlapping, err := s.repo.ListOverlappingTx(ctx, tx, current.ServiceID, current.ScheduledStart, current.ScheduledEnd, current.ID)
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if len(overlapping) > 0 {
				return ErrWindowOverlap
			}
		}

		window = current
		return s.repo.UpdateWindowTx(ctx, tx, current)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "maintenance.update",
		ResourceType:   "maintenance",
		ResourceID:     window.ID,
		NewValues: map[string]any{
			"scheduled_start": window.ScheduledStart,
			"scheduled_end":   window.ScheduledEnd,
		},
	})

	return window, nil
}

// Start transitions scheduled → in_progress and stamps actual_start.
// Requires member.
func (s *Service) Start(ctx context.Context, actor, windowID string) (*domain.Maintenance, error) {
	return s.transition(ctx, actor, windowID, "maintenance.start",
		domain.MaintenanceStatusScheduled, domain.MaintenanceStatusInProgress,
		func(window *domain.Maintenance, now time.Time) {
			window.ActualStart = &now
		})
}

// Complete transitions in_progress → completed and stamps actual_end.
// Requires member.
func (s *Service) Complete(ctx context.Context, actor, windowID string) (*domain.Maintenance, error) {
	return s.transition(ctx, actor, windowID, "maintenance.complete",
		domain.MaintenanceStatusInProgress, domain.MaintenanceStatusCompleted,
		func(window *domain.Maintenance, now time.Time) {
			window.ActualEnd = &now
		})
}

// Cancel transitions scheduled or in_progress → cancelled and clears
// the actuals; a cancelled window never counts as having run.
// Requires admin.
func (s *Service) Cancel(ctx context.Context, actor, windowID string) (*domain.Maintenance, error) {
	loaded, service, err := s.load(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	var oldStatus domain.MaintenanceStatus
	window, err := s.applyTransition(ctx, service, orgID, loaded.ID, func(current *domain.Maintenance) error {
		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, current.Status)
		}
		oldStatus = current.Status
		current.Status = domain.MaintenanceStatusCancelled
		current.ActualStart = nil
		current.ActualEnd = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         "maintenance.cancel",
		ResourceType:   "maintenance",
		ResourceID:     window.ID,
		OldValues:      map[string]any{"status": string(oldStatus)},
		NewValues:      map[string]any{"status": string(window.Status)},
	})

	return window, nil
}

func (s *Service) transition(ctx context.Context, actor, windowID, action string, from, to domain.MaintenanceStatus, stamp func(*domain.Maintenance, time.Time)) (*domain.Maintenance, error) {
	loaded, service, err := s.load(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, service.TeamID, domain.RoleMember); err != nil {
		return nil, err
	}
	orgID, err := s.organizationID(ctx, service.TeamID)
	if err != nil {
		return nil, err
	}

	window, err := s.applyTransition(ctx, service, orgID, loaded.ID, func(current *domain.Maintenance) error {
		if current.Status != from {
			return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current.Status, to)
		}
		current.Status = to
		stamp(current, time.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, &domain.AuditRecord{
		Actor:          actor,
		OrganizationID: orgID,
		TeamID:         service.TeamID,
		Action:         action,
		ResourceType:   "maintenance",
		ResourceID:     window.ID,
		OldValues:      map[string]any{"status": string(from)},
		NewValues:      map[string]any{"status": string(to)},
	})

	return window, nil
}

// applyTransition locks the service, re-reads the window inside the
// transaction, applies the mutation to the fresh copy, persists it and
// re-derives the service status.
func (s *Service) applyTransition(ctx context.Context, service *domain.Service, orgID, windowID string, mutate func(current *domain.Maintenance) error) (*domain.Maintenance, error) {
	unlock := s.locks.Lock(service.ID)
	defer unlock()

	var (
		window *domain.Maintenance
		result status.Result
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := s.repo.GetWindowTx(ctx, tx, windowID)
		if err != nil {
			return err
		}
		if err := mutate(current); err != nil {
			return err
		}
		if err := s.repo.UpdateWindowTx(ctx, tx, current); err != nil {
			return fmt.Errorf("update maintenance window: %w", err)
		}
		window = current
		result, err = s.recalc.RecalculateTx(ctx, tx, current.ServiceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		service.Status = result.New
		s.notifier.ServiceStatusChanged(ctx, service, orgID, result.Old, result.New)
	}
	return window, nil
}

func (s *Service) load(ctx context.Context, windowID string) (*domain.Maintenance, *domain.Service, error) {
	window, err := s.repo.GetWindow(ctx, windowID)
	if err != nil {
		return nil, nil, err
	}
	service, err := s.services.GetService(ctx, window.ServiceID)
	if err != nil {
		return nil, nil, err
	}
	return window, service, nil
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
