package domain

import "time"

// IncidentStatus represents the lifecycle status of an incident.
type IncidentStatus string

// Incident statuses. The progression investigating → identified →
// monitoring → resolved is advisory: any non-resolved status may jump
// to any other. The hard invariant is resolved ⇔ resolved_at set.
const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// IsValid checks if the incident status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusInvestigating, IncidentStatusIdentified,
		IncidentStatusMonitoring, IncidentStatusResolved:
		return true
	}
	return false
}

// IsResolved checks if the status is the terminal resolved state.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentStatusResolved
}

// IncidentSeverity represents the severity level of an incident.
type IncidentSeverity string

// Severity levels.
const (
	SeverityLow      IncidentSeverity = "low"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityHigh     IncidentSeverity = "high"
	SeverityCritical IncidentSeverity = "critical"
)

// IsValid checks if the severity is valid.
func (s IncidentSeverity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ServiceImpact maps the severity of an open incident to the service
// status it imposes.
func (s IncidentSeverity) ServiceImpact() ServiceStatus {
	switch s {
	case SeverityCritical:
		return ServiceStatusMajorOutage
	case SeverityHigh:
		return ServiceStatusPartialOutage
	default:
		return ServiceStatusDegraded
	}
}

// Incident is a tracked disruption to a service.
type Incident struct {
	ID          string           `json:"id"`
	ServiceID   string           `json:"service_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      IncidentStatus   `json:"status"`
	Severity    IncidentSeverity `json:"severity"`
	CreatedBy   string           `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ResolvedAt  *time.Time       `json:"resolved_at"`
}

// IncidentUpdate is an append-only timeline entry for an incident.
// Immutable once created; ordered by created_at ascending.
type IncidentUpdate struct {
	ID         string         `json:"id"`
	IncidentID string         `json:"incident_id"`
	Status     IncidentStatus `json:"status"`
	Message    string         `json:"message"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
}
