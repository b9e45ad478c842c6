package catalog

import "errors"

// Catalog errors.
var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrTeamNotFound         = errors.New("team not found")
	ErrServiceNotFound      = errors.New("service not found")
	ErrMembershipNotFound   = errors.New("membership not found")

	ErrSlugTaken        = errors.New("slug already taken")
	ErrServiceNameTaken = errors.New("service name already taken in team")

	ErrInvalidRole        = errors.New("invalid role")
	ErrRoleExceedsGrantor = errors.New("cannot grant a role above your own")

	ErrServiceHasOpenIncidents = errors.New("service has unresolved incidents")
)
