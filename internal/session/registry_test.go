package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispersoftheland/whispers/internal/backend"
	"github.com/whispersoftheland/whispers/internal/identity"
	"github.com/whispersoftheland/whispers/internal/profile/profiletest"
	"github.com/whispersoftheland/whispers/internal/session"
)

func TestRegistry_GetReusesStorePerClient(t *testing.T) {
	f := newFixture(t, time.Hour)
	reg := session.NewRegistry(f.holder, f.reconciler(), time.Hour)
	defer reg.Close()

	a := reg.Get(context.Background(), "client-a", "")
	assert.True(t, a.State().Initialized)
	assert.Same(t, a, reg.Get(context.Background(), "client-a", "ignored"))
	assert.NotSame(t, a, reg.Get(context.Background(), "client-b", ""))
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_BootstrapsFromToken(t *testing.T) {
	f := newFixture(t, time.Hour)
	sess, err := f.svc.SignUp(context.Background(), creds("ama@example.com"), "Ama")
	require.NoError(t, err)

	reg := session.NewRegistry(f.holder, f.reconciler(), time.Hour)
	defer reg.Close()

	st := settle(t, reg.Get(context.Background(), "client-a", sess.AccessToken))
	assert.True(t, st.SignedIn())
	assert.NotNil(t, st.Profile)
}

func TestRegistry_Sweep(t *testing.T) {
	f := newFixture(t, time.Hour)
	reg := session.NewRegistry(f.holder, f.reconciler(), 20*time.Millisecond)
	defer reg.Close()

	idle := reg.Get(context.Background(), "idle", "")
	feed, _ := idle.Subscribe()
	<-feed

	time.Sleep(40 * time.Millisecond)
	reg.Get(context.Background(), "fresh", "")

	assert.Equal(t, 1, reg.Sweep())
	assert.Equal(t, 1, reg.Len())

	_, ok := <-feed
	assert.False(t, ok, "evicted store is torn down")
}

func TestRegistry_StartStopsWithContext(t *testing.T) {
	f := newFixture(t, time.Hour)
	reg := session.NewRegistry(f.holder, f.reconciler(), time.Millisecond)
	defer reg.Close()
	reg.Get(context.Background(), "idle", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Start(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRegistry_RebindAfterReconnect(t *testing.T) {
	f := newFixture(t, time.Hour)
	sess, err := f.svc.SignUp(context.Background(), creds("ama@example.com"), "Ama")
	require.NoError(t, err)

	replacement := profiletest.New()
	f.holder = backend.NewHolder(f.client(f.svc), func(context.Context) (*backend.Client, error) {
		return &backend.Client{Identity: f.svc, Profiles: replacement}, nil
	})

	reg := session.NewRegistry(f.holder, f.reconciler(), time.Hour)
	defer reg.Close()
	f.holder.OnReplace(reg.Rebind)

	s := reg.Get(context.Background(), "client-a", sess.AccessToken)
	before := settle(t, s)
	require.True(t, before.SignedIn())

	started, err := f.holder.Reconnect(context.Background())
	require.NoError(t, err)
	require.True(t, started)

	assert.Eventually(t, func() bool {
		st := s.State()
		return st.Seq > before.Seq && st.Settled()
	}, 2*time.Second, 10*time.Millisecond)

	st := s.State()
	assert.True(t, st.SignedIn())
	assert.Equal(t, sess.User.ID, st.User.ID)

	_, creates := replacement.Counts()
	assert.Equal(t, 1, creates, "profile is reconciled against the new backend")
}

// sessionLookupFails answers every session lookup with err.
type sessionLookupFails struct {
	identity.Provider
	err error
}

func (p sessionLookupFails) GetSession(context.Context, string) (*identity.Session, error) {
	return nil, p.err
}

func reconnectTo(t *testing.T, f *fixture, p identity.Provider) (*session.Registry, *session.Store, session.State) {
	t.Helper()
	sess, err := f.svc.SignUp(context.Background(), creds("ama@example.com"), "Ama")
	require.NoError(t, err)

	f.holder = backend.NewHolder(f.client(f.svc), func(context.Context) (*backend.Client, error) {
		return f.client(p), nil
	})
	reg := session.NewRegistry(f.holder, f.reconciler(), time.Hour)
	t.Cleanup(reg.Close)
	f.holder.OnReplace(reg.Rebind)

	s := reg.Get(context.Background(), "client-a", sess.AccessToken)
	before := settle(t, s)
	require.True(t, before.SignedIn())

	started, err := f.holder.Reconnect(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	return reg, s, before
}

func TestRegistry_RebindKeepsSessionWhenProviderUnreachable(t *testing.T) {
	f := newFixture(t, time.Hour)
	unreachable := sessionLookupFails{Provider: f.svc, err: errors.New("dial tcp: connection refused")}

	_, s, before := reconnectTo(t, f, unreachable)

	st := s.State()
	assert.True(t, st.SignedIn(), "a transport failure is not a sign-out")
	assert.Equal(t, before.AccessToken(), st.AccessToken())
	assert.Equal(t, before.Seq, st.Seq, "nothing is announced")

	after, err := s.SignOut(context.Background())
	require.NoError(t, err)
	assert.False(t, after.SignedIn(), "the kept session can still be ended")
}

func TestRegistry_RebindSignsOutRejectedToken(t *testing.T) {
	f := newFixture(t, time.Hour)
	rejecting := sessionLookupFails{Provider: f.svc, err: identity.ErrInvalidToken}

	_, s, before := reconnectTo(t, f, rejecting)

	assert.Eventually(t, func() bool {
		st := s.State()
		return st.Seq > before.Seq && !st.SignedIn()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.State().AccessToken())
}

func TestRegistry_RebindIgnoresCancelledCaller(t *testing.T) {
	f := newFixture(t, time.Hour)
	sess, err := f.svc.SignUp(context.Background(), creds("ama@example.com"), "Ama")
	require.NoError(t, err)

	reg := session.NewRegistry(f.holder, f.reconciler(), time.Hour)
	defer reg.Close()
	s := reg.Get(context.Background(), "client-a", sess.AccessToken)
	before := settle(t, s)
	require.True(t, before.SignedIn())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg.Rebind(ctx, f.holder.Current())

	assert.Eventually(t, func() bool {
		st := s.State()
		return st.Seq > before.Seq && st.Settled()
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.State().SignedIn())
	assert.Equal(t, sess.AccessToken, s.State().AccessToken())
}

func TestRegistry_LookupAndDiscard(t *testing.T) {
	f := newFixture(t, time.Hour)
	reg := session.NewRegistry(f.holder, f.reconciler(), time.Hour)
	defer reg.Close()

	assert.Nil(t, reg.Lookup("client-a"))
	assert.Equal(t, 0, reg.Len(), "lookup never creates")

	s := reg.Get(context.Background(), "client-a", "")
	assert.Same(t, s, reg.Lookup("client-a"))

	other := f.store(t, "", nil)
	reg.Discard("client-a", other)
	assert.Equal(t, 1, reg.Len(), "only the held store is discarded")

	feed, _ := s.Subscribe()
	<-feed
	reg.Discard("client-a", s)
	assert.Nil(t, reg.Lookup("client-a"))
	_, ok := <-feed
	assert.False(t, ok, "discarded store is torn down")
}
