package schemas

import (
	"strings"

	"github.com/xkilldash9x/graphedit/internal/apperr"
)

// Role is a privilege level. Roles are totally ordered: guest < user < mod < admin.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleMod   Role = "mod"
	RoleAdmin Role = "admin"
)

var roleLevels = map[Role]int{
	RoleGuest: 0,
	RoleUser:  1,
	RoleMod:   2,
	RoleAdmin: 3,
}

// Level returns the numeric privilege of r; unknown roles rank as guest.
func (r Role) Level() int { return roleLevels[r] }

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool { return r.Level() >= min.Level() }

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", apperr.Validation("role", "unknown role %q", s)
	}
	return r, nil
}

// Principal is the resolved caller identity every operation runs on behalf of.
type Principal struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Guest is the anonymous principal.
var Guest = Principal{Role: RoleGuest}

// Require fails with Unauthenticated for guests and Forbidden for
// authenticated principals below min.
func (p Principal) Require(op string, min Role) error {
	if p.Role.AtLeast(min) {
		return nil
	}
	if p.UserID == "" || p.Role == RoleGuest {
		return apperr.Unauthenticated(op, "authentication required")
	}
	return apperr.Forbidden(op, "requires role %s", min)
}
