package domain

// Role represents a principal's permission level within a team.
type Role string

// Roles ordered from weakest to strongest.
const (
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

var roleRanks = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// Rank returns the numeric rank of the role. Unknown roles rank 0,
// below viewer, so they never satisfy any requirement.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Satisfies reports whether the role meets the required minimum role.
func (r Role) Satisfies(required Role) bool {
	return r.Rank() >= roleRanks[required]
}

// IsValid checks if the role is valid.
func (r Role) IsValid() bool {
	_, ok := roleRanks[r]
	return ok
}
