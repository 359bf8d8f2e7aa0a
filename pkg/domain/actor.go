package domain

import (
	"strings"

	dErrors "kvault/pkg/domain-errors"
)

// Role is fixed at account creation.
type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleUser, RoleAdmin, RoleReviewer:
		return r, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
}

// IsPrivileged reports whether the role may act on any artefact in its region.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleReviewer
}

// Actor is the authenticated principal for one request. Handlers resolve it
// from the bearer credential and pass it explicitly to services.
type Actor struct {
	ID       UserID
	Role     Role
	RegionID RegionID
}

func (a Actor) IsPrivileged() bool {
	return a.Role.IsPrivileged()
}

func (a Actor) IsZero() bool {
	return a.ID.IsNil()
}
