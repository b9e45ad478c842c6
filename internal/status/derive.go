// Package status computes a service's operational status from its open
// incidents and in-progress maintenance windows.
package status

import "github.com/bissquit/status-garden/internal/domain"

// Derive computes the operational status for one service from a
// snapshot of its incidents and maintenance windows. Pure and
// idempotent: the same snapshot always yields the same status.
//
// Priority, first match wins:
//  1. any unresolved critical incident  → major_outage
//  2. any unresolved high incident      → partial_outage
//  3. any other unresolved incident     → degraded
//  4. any in-progress maintenance       → degraded
//  5. otherwise                         → operational
//
// Incidents strictly dominate maintenance: an active incident's status
// is never softened by a concurrent maintenance window. Resolved
// incidents and non-in-progress windows are ignored regardless of what
// the caller passes in.
func Derive(incidents []*domain.Incident, windows []*domain.Maintenance) domain.ServiceStatus {
	worst := domain.ServiceStatusOperational
	open := false

	for _, inc := range incidents {
		if inc.Status.IsResolved() {
			continue
		}
		open = true
		if impact := inc.Severity.ServiceImpact(); statusRank(impact) > statusRank(worst) {
			worst = impact
		}
	}
	if open {
		return worst
	}

	for _, w := range windows {
		if w.Status == domain.MaintenanceStatusInProgress {
			return domain.ServiceStatusDegraded
		}
	}

	return domain.ServiceStatusOperational
}

func statusRank(s domain.ServiceStatus) int {
	switch s {
	case domain.ServiceStatusMajorOutage:
		return 3
	case domain.ServiceStatusPartialOutage:
		return 2
	case domain.ServiceStatusDegraded:
		return 1
	default:
		return 0
	}
}
