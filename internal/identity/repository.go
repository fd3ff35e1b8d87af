package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUserNotFound is returned when a user record is not found.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned when signing up with an email that is already registered.
var ErrEmailTaken = errors.New("email already registered")

// UserRepository provides operations on the auth_users table.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateFullName(ctx context.Context, id uuid.UUID, fullName string) (*User, error)
}
