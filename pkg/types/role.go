package types

// Role is a user category governing both content policy and backend
// authorization. The set is closed; unknown values are rejected at the
// config boundary.
type Role string

const (
	RoleRoot   Role = "root"
	RoleAdult  Role = "adult"
	RoleSenior Role = "senior"
	RoleChild  Role = "child"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleRoot, RoleAdult, RoleSenior, RoleChild:
		return true
	}
	return false
}
