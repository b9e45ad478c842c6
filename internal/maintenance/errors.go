package maintenance

import "errors"

// Maintenance errors.
var (
	ErrWindowNotFound    = errors.New("maintenance window not found")
	ErrWindowOverlap     = errors.New("maintenance window overlaps an existing window")
	ErrInvalidTransition = errors.New("invalid maintenance transition")
	ErrInvalidSchedule   = errors.New("invalid maintenance schedule")
	ErrNotEditable       = errors.New("maintenance window is no longer editable")
)
