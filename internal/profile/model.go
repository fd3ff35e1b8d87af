package profile

import (
	"time"

	"github.com/google/uuid"
)

// Role values as stored in profiles.role.
const (
	RoleRegular    = "user"
	RolePrivileged = "admin"
)

// Profile represents a row in the profiles table. Its ID equals the id of
// the identity it belongs to.
type Profile struct {
	ID        uuid.UUID
	Email     string
	FullName  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Transient marks a stand-in built in memory when the datastore could not
	// supply a record. It is never written back.
	Transient bool
}

// UpdateFields holds the user-editable fields of a profile. Nil fields are not updated.
type UpdateFields struct {
	FullName *string
}

// Default builds the transient regular-role profile used when no record can
// be read or created.
func Default(id uuid.UUID, email, fullName string, now time.Time) *Profile {
	return &Profile{
		ID:        id,
		Email:     email,
		FullName:  fullName,
		Role:      RoleRegular,
		CreatedAt: now,
		UpdatedAt: now,
		Transient: true,
	}
}

// ValidRole reports whether role is one of the stored role values.
func ValidRole(role string) bool {
	return role == RoleRegular || role == RolePrivileged
}
