// Package access implements role- and context-based authorisation for
// device operations.
//
// Roles form four tiers: owners and property managers may operate any
// device; tenants are scoped to their assigned units and rooms; guests are
// scoped to explicitly granted devices inside a validity window.
package access

import (
	"errors"
	"time"
)

// Role represents an authorisation tier.
type Role string

const (
	// RoleOwner is the portfolio owner. Unrestricted device access.
	RoleOwner Role = "owner"

	// RolePropertyManager manages properties on the owner's behalf.
	// Unrestricted device access.
	RolePropertyManager Role = "property_manager"

	// RoleTenant is a resident scoped to their assigned units and rooms.
	RoleTenant Role = "tenant"

	// RoleGuest has time-boxed access to explicitly granted devices.
	RoleGuest Role = "guest"
)

// ValidRoles is the set of valid roles.
var ValidRoles = []Role{RoleOwner, RolePropertyManager, RoleTenant, RoleGuest}

// IsValidRole returns true if the role is recognised.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Unrestricted reports whether the role bypasses unit/room scoping.
func (r Role) Unrestricted() bool {
	return r == RoleOwner || r == RolePropertyManager
}

// GuestAccess is a guest's device grant with its validity window.
type GuestAccess struct {
	DeviceIDs  []string  `json:"device_ids"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
}

// ActiveAt reports whether the grant window covers the given instant.
func (g *GuestAccess) ActiveAt(now time.Time) bool {
	if g == nil {
		return false
	}
	return !now.Before(g.ValidFrom) && !now.After(g.ValidUntil)
}

// CoversDevice reports whether the grant includes the device.
func (g *GuestAccess) CoversDevice(deviceID string) bool {
	if g == nil {
		return false
	}
	for _, id := range g.DeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}

// User represents an acting user resolved for an authorisation decision.
type User struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"display_name"`
	Role        Role         `json:"role"`
	IsActive    bool         `json:"is_active"`
	UnitIDs     []string     `json:"unit_ids,omitempty"` // tenant scope
	RoomIDs     []string     `json:"room_ids,omitempty"` // tenant scope
	GuestAccess *GuestAccess `json:"guest_access,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// InScope reports whether a device located in the given unit/room falls
// inside the user's tenant scope. Either identifier may be nil.
func (u *User) InScope(unitID, roomID *string) bool {
	if unitID != nil {
		for _, id := range u.UnitIDs {
			if id == *unitID {
				return true
			}
		}
	}
	if roomID != nil {
		for _, id := range u.RoomIDs {
			if id == *roomID {
				return true
			}
		}
	}
	return false
}

// Sentinel errors for the access package.
var (
	ErrUserNotFound = errors.New("access: user not found")
	ErrUserInactive = errors.New("access: user account is inactive")
	ErrInvalidRole  = errors.New("access: invalid role")
)
