// Package profiletest provides an in-memory profile.Repository for tests.
package profiletest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whispersoftheland/whispers/internal/profile"
)

// Profiles is an in-memory profile.Repository. The optional hooks run before
// the in-memory behaviour and short-circuit it when they return a non-nil error.
type Profiles struct {
	mu   sync.Mutex
	rows map[uuid.UUID]profile.Profile

	GetFn    func(ctx context.Context, id uuid.UUID) error
	CreateFn func(ctx context.Context, p *profile.Profile) error

	Gets    int
	Creates int
}

// New returns an empty repository.
func New() *Profiles {
	return &Profiles{rows: make(map[uuid.UUID]profile.Profile)}
}

// Put stores p as if it had been provisioned by the backend.
func (r *Profiles) Put(p profile.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = p
}

// Get returns the stored row for id, if any.
func (r *Profiles) Get(id uuid.UUID) (profile.Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	return p, ok
}

// Counts returns the number of GetByID and Create calls made so far.
func (r *Profiles) Counts() (gets, creates int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Gets, r.Creates
}

func (r *Profiles) GetByID(ctx context.Context, id uuid.UUID) (*profile.Profile, error) {
	r.mu.Lock()
	r.Gets++
	hook := r.GetFn
	r.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, id); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return &p, nil
}

func (r *Profiles) GetByEmail(_ context.Context, email string) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if strings.EqualFold(p.Email, email) {
			return &p, nil
		}
	}
	return nil, profile.ErrNotFound
}

func (r *Profiles) Create(ctx context.Context, p *profile.Profile) error {
	r.mu.Lock()
	r.Creates++
	hook := r.CreateFn
	r.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, p); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.ID]; ok {
		return profile.ErrDuplicate
	}
	if p.Role == "" {
		p.Role = profile.RoleRegular
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.rows[p.ID] = *p
	return nil
}

func (r *Profiles) Update(_ context.Context, id uuid.UUID, fields profile.UpdateFields) (*profile.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, profile.ErrNotFound
	}
	if fields.FullName != nil {
		p.FullName = *fields.FullName
		p.UpdatedAt = time.Now().UTC()
	}
	r.rows[id] = p
	return &p, nil
}

func (r *Profiles) SetRole(_ context.Context, id uuid.UUID, role string) (*profile.Profile, error) {
	if !profile.ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, profile.ErrNotFound
	}
	p.Role = role
	r.rows[id] = p
	return &p, nil
}
