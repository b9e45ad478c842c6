package domain

import "time"

// EventKind represents the type of an outbound notification event.
type EventKind string

// Event kinds.
const (
	EventServiceStatusChanged EventKind = "service_status_changed"
	EventIncidentCreated      EventKind = "incident_created"
	EventIncidentUpdated      EventKind = "incident_updated"
	EventMaintenanceScheduled EventKind = "maintenance_scheduled"
)

// Event is the contract emitted to the external push channel after a
// committed status-affecting transition. Delivery is best-effort.
type Event struct {
	Kind           EventKind `json:"kind"`
	ServiceID      string    `json:"service_id"`
	TeamID         string    `json:"team_id"`
	OrganizationID string    `json:"organization_id"`
	Subject        string    `json:"subject,omitempty"`
	OldValue       string    `json:"old_value,omitempty"`
	NewValue       string    `json:"new_value,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// AuditRecord is the structured record emitted to the external audit
// sink for every mutating operation. Fire-and-forget relative to the
// operation's own outcome.
type AuditRecord struct {
	Actor          string         `json:"actor"`
	OrganizationID string         `json:"organization_id"`
	TeamID         string         `json:"team_id"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	OldValues      map[string]any `json:"old_values,omitempty"`
	NewValues      map[string]any `json:"new_values,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
