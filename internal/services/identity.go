package services

import (
	"fmt"
	"strings"

	"github.com/localnerve/librarydb/internal/models"
)

// Identity is the caller of an operation. It is passed explicitly to every call.
type Identity struct {
	UserID   uint        `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// IdentityOf builds the identity of a stored user
func IdentityOf(u *models.User) Identity {
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// Anonymous reports whether no user is signed in
func (id Identity) Anonymous() bool {
	return id.UserID == 0
}

// Is reports whether the identity holds role
func (id Identity) Is(role models.Role) bool {
	return !id.Anonymous() && id.Role == role
}

// Require is the capability check run at the start of every guarded operation
func (id Identity) Require(roles ...models.Role) error {
	if id.Anonymous() {
		return fmt.Errorf("%w: sign in required", ErrForbidden)
	}
	for _, role := range roles {
		if id.Role == role {
			return nil
		}
	}

	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return fmt.Errorf("%w: only %s users have access here", ErrForbidden, strings.Join(names, " or "))
}
