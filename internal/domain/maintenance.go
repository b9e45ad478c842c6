package domain

import "time"

// MaintenanceStatus represents the lifecycle status of a maintenance window.
type MaintenanceStatus string

// Maintenance statuses.
const (
	MaintenanceStatusScheduled  MaintenanceStatus = "scheduled"
	MaintenanceStatusInProgress MaintenanceStatus = "in_progress"
	MaintenanceStatusCompleted  MaintenanceStatus = "completed"
	MaintenanceStatusCancelled  MaintenanceStatus = "cancelled"
)

// IsValid checks if the maintenance status is valid.
func (s MaintenanceStatus) IsValid() bool {
	switch s {
	case MaintenanceStatusScheduled, MaintenanceStatusInProgress,
		MaintenanceStatusCompleted, MaintenanceStatusCancelled:
		return true
	}
	return false
}

// IsTerminal checks if the status permits no further transitions.
func (s MaintenanceStatus) IsTerminal() bool {
	return s == MaintenanceStatusCompleted || s == MaintenanceStatusCancelled
}

// Maintenance is a scheduled window of planned disruption to a service.
// actual_start/actual_end are populated only by state transitions:
// scheduled has neither, in_progress has actual_start, completed has
// both, cancelled has neither.
type Maintenance struct {
	ID             string            `json:"id"`
	ServiceID      string            `json:"service_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	ScheduledStart time.Time         `json:"scheduled_start"`
	ScheduledEnd   time.Time         `json:"scheduled_end"`
	ActualStart    *time.Time        `json:"actual_start"`
	ActualEnd      *time.Time        `json:"actual_end"`
	Status         MaintenanceStatus `json:"status"`
	CreatedBy      string            `json:"created_by"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// OverlapsWindow reports whether the window [start, end) overlaps this
// maintenance's scheduled window. Cancelled windows never conflict.
func (m *Maintenance) OverlapsWindow(start, end time.Time) bool {
	if m.Status == MaintenanceStatusCancelled {
		return false
	}
	return start.Before(m.ScheduledEnd) && m.ScheduledStart.Before(end)
}
