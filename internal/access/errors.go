package access

import "errors"

// Authorization errors.
var (
	// ErrNotAMember is returned when the principal has no role in the
	// target team. Unknown teams surface the same error so callers
	// cannot probe for team existence.
	ErrNotAMember = errors.New("principal is not a member of the team")

	// ErrInsufficientRole is returned when the principal has a role in
	// the team but it does not satisfy the required minimum.
	ErrInsufficientRole = errors.New("insufficient role for operation")
)
