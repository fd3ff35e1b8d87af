package story

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a story record is not found.
var ErrNotFound = errors.New("story not found")

// Repository provides CRUD operations on the stories table.
type Repository interface {
	Create(ctx context.Context, s *Story) error
	GetByID(ctx context.Context, id uuid.UUID) (*Story, error)
	List(ctx context.Context, filter ListFilter) (*ListResult, error)
	Approve(ctx context.Context, id uuid.UUID) (*Story, error)
	SetEnglishAudioURL(ctx context.Context, id uuid.UUID, url string) (*Story, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
