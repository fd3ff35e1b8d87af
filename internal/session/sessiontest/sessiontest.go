// Package sessiontest wires real session stores to an in-memory backend.
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/whispersoftheland/whispers/internal/backend"
	"github.com/whispersoftheland/whispers/internal/identity"
	"github.com/whispersoftheland/whispers/internal/identity/identitytest"
	"github.com/whispersoftheland/whispers/internal/profile"
	"github.com/whispersoftheland/whispers/internal/profile/profiletest"
	"github.com/whispersoftheland/whispers/internal/reconciler"
	"github.com/whispersoftheland/whispers/internal/session"
)

// Password is used for every account created through Env.
const Password = "correct-horse"

// Env is an in-memory backend with a session registry on top.
type Env struct {
	Identity *identity.Service
	Users    *identitytest.Users
	Profiles *profiletest.Profiles
	Holder   *backend.Holder
	Registry *session.Registry

	// Client is the backend client handed out by Holder. Tests may set
	// Stories and Storage on it before issuing requests.
	Client *backend.Client
}

// New builds an Env torn down with the test.
func New(t testing.TB) *Env {
	t.Helper()
	svc, users := identitytest.NewService(time.Hour)
	e := &Env{Identity: svc, Users: users, Profiles: profiletest.New()}
	e.Client = &backend.Client{Identity: svc, Profiles: e.Profiles}
	e.Holder = backend.NewHolder(e.Client, func(context.Context) (*backend.Client, error) {
		next := *e.Client
		return &next, nil
	})

	rec := reconciler.New(func() profile.Repository {
		return e.Holder.Current().Profiles
	}, reconciler.Config{Timeout: time.Second})
	e.Registry = session.NewRegistry(e.Holder, rec, time.Hour)
	e.Holder.OnReplace(e.Registry.Rebind)
	t.Cleanup(e.Registry.Close)
	return e
}

// SignUp registers an account and returns its session.
func (e *Env) SignUp(t testing.TB, email, fullName string) *identity.Session {
	t.Helper()
	sess, err := e.Identity.SignUp(context.Background(), identity.Credentials{Email: email, Password: Password}, fullName)
	require.NoError(t, err)
	return sess
}

// Moderator registers an account whose profile carries the privileged role.
func (e *Env) Moderator(t testing.TB, email string) *identity.Session {
	t.Helper()
	sess := e.SignUp(t, email, "Moderator")
	now := time.Now().UTC()
	e.Profiles.Put(profile.Profile{
		ID:        sess.User.ID,
		Email:     sess.User.Email,
		FullName:  "Moderator",
		Role:      profile.RolePrivileged,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return sess
}

// Store returns the settled store for clientID bootstrapped from token.
func (e *Env) Store(t testing.TB, clientID, token string) *session.Store {
	t.Helper()
	s := e.Registry.Get(context.Background(), clientID, token)
	Settle(t, s)
	return s
}

// Settle waits for s to settle.
func Settle(t testing.TB, s *session.Store) session.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := s.Settled(ctx)
	require.NoError(t, err)
	return st
}
