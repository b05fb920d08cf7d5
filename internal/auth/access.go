package auth

import (
	apperr "eventcart/internal/errors"
	"eventcart/internal/models"
)

// Access is a required access pattern checked against an Identity.
type Access func(id Identity) bool

// Self allows only the client owning clientID.
func Self(clientID string) Access {
	return func(id Identity) bool {
		return id.Role == models.RoleClient && id.UserID != "" && id.UserID == clientID
	}
}

// AdminSelf allows only the administrator with adminID.
func AdminSelf(adminID string) Access {
	return func(id Identity) bool {
		return id.Role == models.RoleAdmin && id.UserID != "" && id.UserID == adminID
	}
}

// Role allows any identity holding role r.
func Role(r models.Role) Access {
	return func(id Identity) bool {
		return id.Role == r
	}
}

// Authorize returns AUTH_FORBIDDEN unless access allows id.
func Authorize(id Identity, access Access) error {
	if access(id) {
		return nil
	}
	return apperr.ErrForbidden
}
