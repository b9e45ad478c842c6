package incidents

import "errors"

// Incident errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrAlreadyResolved  = errors.New("incident already resolved")
	ErrTooOldToDelete   = errors.New("incident too old to delete")
	ErrInvalidStatus    = errors.New("invalid incident status")
	ErrInvalidSeverity  = errors.New("invalid incident severity")
)
