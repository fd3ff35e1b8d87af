package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no profile exists for the requested id.
var ErrNotFound = errors.New("profile not found")

// ErrDuplicate is returned when a profile with the same id already exists.
var ErrDuplicate = errors.New("profile already exists")

// Repository provides operations on the profiles table.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, id uuid.UUID, fields UpdateFields) (*Profile, error)
	SetRole(ctx context.Context, id uuid.UUID, role string) (*Profile, error)
}
