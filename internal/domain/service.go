package domain

import "time"

// ServiceStatus represents the operational status of a service.
type ServiceStatus string

// Service statuses.
const (
	ServiceStatusOperational   ServiceStatus = "operational"
	ServiceStatusDegraded      ServiceStatus = "degraded"
	ServiceStatusPartialOutage ServiceStatus = "partial_outage"
	ServiceStatusMajorOutage   ServiceStatus = "major_outage"
)

// IsValid checks if the service status is valid.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case ServiceStatusOperational, ServiceStatusDegraded,
		ServiceStatusPartialOutage, ServiceStatusMajorOutage:
		return true
	}
	return false
}

// ActiveStatus marks whether a service is actively monitored.
type ActiveStatus string

// Active statuses.
const (
	ActiveStatusActive   ActiveStatus = "active"
	ActiveStatusInactive ActiveStatus = "inactive"
)

// IsValid checks if the active status is valid.
func (s ActiveStatus) IsValid() bool {
	return s == ActiveStatusActive || s == ActiveStatusInactive
}

// Service is a monitored unit owned by a team. Its Status is derived
// from open incidents and in-progress maintenance; ordinary writes
// never set it directly.
type Service struct {
	ID           string        `json:"id"`
	TeamID       string        `json:"team_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Status       ServiceStatus `json:"status"`
	EntityType   string        `json:"entity_type"`
	ActiveStatus ActiveStatus  `json:"active_status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
