// Package notify delivers status change events to an outbound webhook.
//
// Publication is fire and forget: lifecycle services publish after
// their transaction commits, delivery happens on a background worker,
// and failures are logged but never surfaced to the caller.
package notify

import (
	"context"
	"time"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/ctxlog"
)

const defaultQueueSize = 256

// Notifier accepts events and queues them for asynchronous delivery.
type Notifier struct {
	events chan *domain.Event
}

// NewNotifier creates a notifier with the given queue capacity.
func NewNotifier(queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Notifier{events: make(chan *domain.Event, queueSize)}
}

// Publish enqueues an event without blocking. When the queue is full
// the event is dropped and counted; delivery is best effort.
func (n *Notifier) Publish(ctx context.Context, event *domain.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case n.events <- event:
		recordEventPublished(string(event.Kind))
	default:
		recordEventDropped(string(event.Kind))
		ctxlog.FromContext(ctx).Warn("notification queue full, event dropped",
			"kind", event.Kind,
			"service_id", event.ServiceID,
		)
	}
}

// ServiceStatusChanged publishes a service status transition.
func (n *Notifier) ServiceStatusChanged(ctx context.Context, service *domain.Service, orgID string, old, new domain.ServiceStatus) {
	n.Publish(ctx, &domain.Event{
		Kind:           domain.EventServiceStatusChanged,
		ServiceID:      service.ID,
		TeamID:         service.TeamID,
		OrganizationID: orgID,
		Subject:        service.Name,
		OldValue:       string(old),
		NewValue:       string(new),
	})
}

// IncidentCreated publishes a new incident event.
func (n *Notifier) IncidentCreated(ctx context.Context, incident *domain.Incident, teamID, orgID string) {
	n.Publish(ctx, &domain.Event{
		Kind:           domain.EventIncidentCreated,
		ServiceID:      incident.ServiceID,
		TeamID:         teamID,
		OrganizationID: orgID,
		Subject:        incident.Title,
		NewValue:       string(incident.Severity),
	})
}

// IncidentUpdated publishes an incident status change.
func (n *Notifier) IncidentUpdated(ctx context.Context, incident *domain.Incident, teamID, orgID string, old domain.IncidentStatus) {
	n.Publish(ctx, &domain.Event{
		Kind:           domain.EventIncidentUpdated,
		ServiceID:      incident.ServiceID,
		TeamID:         teamID,
		OrganizationID: orgID,
		Subject:        incident.Title,
		OldValue:       string(old),
		NewValue:       string(incident.Status),
	})
}

// MaintenanceScheduled publishes a newly scheduled maintenance window.
func (n *Notifier) MaintenanceScheduled(ctx context.Context, window *domain.Maintenance, teamID, orgID string) {
	n.Publish(ctx, &domain.Event{
		Kind:           domain.EventMaintenanceScheduled,
		ServiceID:      window.ServiceID,
		TeamID:         teamID,
		OrganizationID: orgID,
		Subject:        window.Title,
		NewValue:       string(window.Status),
	})
}

// Events exposes the queue for the worker.
func (n *Notifier) Events() <-chan *domain.Event {
	return n.events
}
