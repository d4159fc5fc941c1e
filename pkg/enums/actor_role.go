package enums

import "fmt"

// ActorRole identifies the kind of principal behind an authenticated request.
type ActorRole string

const (
	ActorRoleAdmin   ActorRole = "admin"
	ActorRoleService ActorRole = "service"
	ActorRoleOps     ActorRole = "ops"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleService,
	ActorRoleOps,
}

// IsValid reports whether the value matches the canonical actor role enum.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
