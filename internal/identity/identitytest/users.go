// Package identitytest provides in-memory identity fixtures for tests.
package identitytest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whispersoftheland/whispers/internal/identity"
)

// Users is an in-memory identity.UserRepository.
type Users struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]identity.User
	Err   error // returned by every call when set
	Calls int
}

// NewUsers creates an empty repository.
func NewUsers() *Users {
	return &Users{byID: make(map[uuid.UUID]identity.User)}
}

func (r *Users) Create(_ context.Context, u *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return r.Err
	}

	u.Email = strings.ToLower(u.Email)
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return identity.ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	r.byID[u.ID] = *u
	return nil
}

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return nil, r.Err
	}

	u, ok := r.byID[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return &u, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return nil, r.Err
	}

	email = strings.ToLower(email)
	for _, u := range r.byID {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (r *Users) UpdateFullName(_ context.Context, id uuid.UUID, fullName string) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return nil, r.Err
	}

	u, ok := r.byID[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	u.FullName = fullName
	u.UpdatedAt = time.Now().UTC()
	r.byID[id] = u
	return &u, nil
}

// Delete removes a user, invalidating its sessions.
func (r *Users) Delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Revocations is an in-memory identity.Revocations.
type Revocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

// NewRevocations creates an empty revocation list.
func NewRevocations() *Revocations {
	return &Revocations{revoked: make(map[string]bool)}
}

func (r *Revocations) Revoke(_ context.Context, tokenID string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[tokenID] = true
	return nil
}

func (r *Revocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[tokenID], nil
}

// NewService builds an identity.Service over fresh in-memory fixtures with a
// minimal bcrypt cost.
func NewService(ttl time.Duration) (*identity.Service, *Users) {
	users := NewUsers()
	signer, err := identity.NewSigner("identitytest-secret", "identitytest", ttl)
	if err != nil {
		panic(err)
	}
	svc := identity.NewService(users, signer,
		identity.WithBcryptCost(4),
		identity.WithRevocations(NewRevocations()),
	)
	return svc, users
}
