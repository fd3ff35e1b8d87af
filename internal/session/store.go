// Package session keeps, per browser client, who is signed in and which
// profile and privileges go with them.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/whispersoftheland/whispers/internal/authz"
	"github.com/whispersoftheland/whispers/internal/backend"
	"github.com/whispersoftheland/whispers/internal/identity"
	"github.com/whispersoftheland/whispers/internal/profile"
	"github.com/whispersoftheland/whispers/internal/reconciler"
)

var (
	// ErrBusy is returned when a sign-in, sign-up, sign-out or profile
	// update is already in flight for the store.
	ErrBusy = errors.New("another request is in flight")
	// ErrClosed is returned by a store that has been torn down.
	ErrClosed = errors.New("session store closed")
	// ErrSignedOut is returned by operations that need a signed-in user.
	ErrSignedOut = errors.New("not signed in")
)

// Backend supplies the current backend connection.
type Backend interface {
	Current() *backend.Client
}

// Reconciler resolves the profile for a signed-in identity.
type Reconciler interface {
	Reconcile(ctx context.Context, u identity.User) (reconciler.Result, error)
}

// State is a snapshot of a store. Snapshots are never modified after publication.
type State struct {
	Initialized  bool
	Busy         bool
	Reconciling  bool
	Session      *identity.Session
	User         *identity.User
	Profile      *profile.Profile
	IsPrivileged bool
	// Seq identifies the session change this snapshot reflects.
	Seq uint64
}

// SignedIn reports whether an identity is present.
func (s State) SignedIn() bool { return s.User != nil }

// Settled reports whether dependents can act on the snapshot.
func (s State) Settled() bool { return s.Initialized && !s.Reconciling }

// AccessToken returns the session token, or "" when signed out.
func (s State) AccessToken() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.AccessToken
}

// Option configures a Store.
type Option func(*Store)

// WithRefreshWindow refreshes the token this long before it expires.
func WithRefreshWindow(d time.Duration) Option {
	return func(s *Store) { s.refreshWindow = d }
}

// WithRefreshRetry sets the pause before retrying a failed refresh.
func WithRefreshRetry(d time.Duration) Option {
	return func(s *Store) { s.refreshRetry = d }
}

// Store is the single source of truth for one client's session. It consumes
// the identity client's change feed in order and reconciles the profile for
// every change; results of superseded changes are discarded.
type Store struct {
	backend       Backend
	reconciler    Reconciler
	refreshWindow time.Duration
	refreshRetry  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	client          *identity.Client
	unsubscribe     func()
	state           State
	seq             uint64
	cancelReconcile context.CancelFunc
	changed         chan struct{}
	refreshTimer    *time.Timer
	subs            map[int]chan State
	nextSub         int
	initOnce        sync.Once
	closed          bool
}

// NewStore creates a Store bound to the current backend. A non-empty token
// is verified by Initialize.
func NewStore(b Backend, r Reconciler, token string, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:       b,
		reconciler:    r,
		refreshWindow: 5 * time.Minute,
		refreshRetry:  30 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
		changed:       make(chan struct{}),
		subs:          make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bind(identity.NewClient(b.Current().Identity, token))
	return s
}

// bind attaches c and starts consuming its feed. Caller must not hold mu.
func (s *Store) bind(c *identity.Client) {
	feed, unsubscribe := c.Subscribe()

	s.mu.Lock()
	s.client = c
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	go s.consume(c, feed)
}

func (s *Store) consume(src *identity.Client, feed <-chan identity.Event) {
	for ev := range feed {
		s.handle(src, ev)
	}
}

// Initialize looks up an existing session once. Whatever happens, the store
// ends up initialized; a failed lookup counts as signed out.
func (s *Store) Initialize(ctx context.Context) State {
	s.initOnce.Do(func() {
		c := s.identityClient()
		sess, err := c.GetSession(ctx)
		if err != nil {
			slog.Warn("session lookup failed; continuing signed out", "error", err)
			sess = nil
		}
		s.handle(c, identity.Event{Kind: identity.EventInitialSession, Session: sess})
	})
	return s.State()
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Settled waits until the store is initialized and no reconciliation is
// running, or ctx ends. The latest snapshot is returned either way.
func (s *Store) Settled(ctx context.Context) (State, error) {
	return s.waitFor(ctx, State.Settled)
}

// Subscribe delivers snapshots as they are published. Slow subscribers only
// see the latest one.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- s.state

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// SignIn authenticates and returns once the new session is applied.
func (s *Store) SignIn(ctx context.Context, creds identity.Credentials) (State, error) {
	return s.exclusive(ctx, func(c *identity.Client) error {
		_, err := c.SignIn(ctx, creds)
		return err
	})
}

// SignUp registers and signs in, returning once the new session is applied.
func (s *Store) SignUp(ctx context.Context, creds identity.Credentials, fullName string) (State, error) {
	return s.exclusive(ctx, func(c *identity.Client) error {
		_, err := c.SignUp(ctx, creds, fullName)
		return err
	})
}

// SignOut ends the session. The store is signed out afterwards even when the
// provider call fails; that error is still returned.
func (s *Store) SignOut(ctx context.Context) (State, error) {
	var signOutErr error
	st, err := s.exclusive(ctx, func(c *identity.Client) error {
		signOutErr = c.SignOut(ctx)
		return nil
	})
	if err != nil {
		return st, err
	}
	if signOutErr != nil {
		slog.Warn("sign-out was not confirmed by the provider", "error", signOutErr)
	}
	return st, signOutErr
}

// UpdateProfile changes the display name on the profile record and the
// identity, then waits for the resulting session change to be applied.
func (s *Store) UpdateProfile(ctx context.Context, fullName string) (State, error) {
	return s.exclusive(ctx, func(c *identity.Client) error {
		st := s.State()
		if st.User == nil {
			return ErrSignedOut
		}
		if _, err := s.backend.Current().Profiles.Update(ctx, st.User.ID, profile.UpdateFields{FullName: &fullName}); err != nil {
			return err
		}
		_, err := c.UpdateUser(ctx, fullName)
		return err
	})
}

// Rebind moves the store onto the current backend after a reconnect. The
// session is re-announced by the new identity client, which starts a fresh
// reconciliation. If the provider cannot be reached the store keeps its
// current state.
func (s *Store) Rebind(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	old, oldUnsubscribe := s.client, s.unsubscribe
	held := s.state.Session
	s.mu.Unlock()

	token := ""
	if held != nil {
		token = held.AccessToken
	}
	next := identity.NewClient(s.backend.Current().Identity, token)
	s.bind(next)
	oldUnsubscribe()
	old.Close()

	if _, err := next.Restore(ctx, held); err != nil {
		if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrSessionExpired) {
			slog.Info("session ended after reconnect", "error", err)
			return
		}
		slog.Warn("session kept without verification after reconnect", "error", err)
	}
}

// Teardown stops the store. In-flight work is cancelled and subscribers are closed.
func (s *Store) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancelReconcile != nil {
		s.cancelReconcile()
		s.cancelReconcile = nil
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	close(s.changed)
	s.changed = make(chan struct{})
	c, unsubscribe := s.client, s.unsubscribe
	s.mu.Unlock()

	s.cancel()
	unsubscribe()
	c.Close()
}

// exclusive runs op with the busy flag set and waits until the session
// change it caused, if any, has been applied.
func (s *Store) exclusive(ctx context.Context, op func(c *identity.Client) error) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, ErrClosed
	}
	if s.state.Busy {
		st := s.state
		s.mu.Unlock()
		return st, ErrBusy
	}
	next := s.state
	next.Busy = true
	s.publish(next)
	before := s.seq
	c := s.client
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		next := s.state
		next.Busy = false
		s.publish(next)
		s.mu.Unlock()
	}()

	if err := op(c); err != nil {
		return s.State(), err
	}
	return s.waitFor(ctx, func(st State) bool { return st.Seq > before })
}

// handle applies one session change from src. Identity and session change
// together, any running reconciliation is cancelled, and a new one starts
// for a signed-in identity.
func (s *Store) handle(src *identity.Client, ev identity.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || src != s.client {
		return
	}

	s.seq++
	seq := s.seq
	if s.cancelReconcile != nil {
		s.cancelReconcile()
		s.cancelReconcile = nil
	}

	next := s.state
	next.Initialized = true
	next.Seq = seq
	next.Session = ev.Session
	next.User = nil
	if ev.Session != nil {
		u := ev.Session.User
		next.User = &u
	}

	if next.User == nil {
		next.Profile = nil
		next.IsPrivileged = false
		next.Reconciling = false
	} else {
		// A refreshed token for the same user keeps the known profile
		// visible until the new reconciliation lands.
		if next.Profile == nil || next.Profile.ID != next.User.ID {
			next.Profile = nil
			next.IsPrivileged = false
		}
		next.Reconciling = true

		ctx, cancel := context.WithCancel(s.ctx)
		s.cancelReconcile = cancel
		go s.reconcile(ctx, seq, *next.User)
	}

	slog.Debug("session changed", "event", ev.Kind.String(), "seq", seq, "signedIn", next.User != nil)
	s.publish(next)
	s.scheduleRefresh(ev.Session)
}

func (s *Store) reconcile(ctx context.Context, seq uint64, u identity.User) {
	res, err := s.reconciler.Reconcile(ctx, u)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || seq != s.seq {
		slog.Debug("discarding superseded profile", "seq", seq, "current", s.seq)
		return
	}
	if s.cancelReconcile != nil {
		s.cancelReconcile()
		s.cancelReconcile = nil
	}

	next := s.state
	next.Profile = res.Profile
	next.IsPrivileged = authz.IsPrivileged(res.Profile)
	next.Reconciling = false
	s.publish(next)

	slog.Debug("profile reconciled", "userId", u.ID, "outcome", res.Outcome.String(), "privileged", next.IsPrivileged)
}

// scheduleRefresh arms the token refresh for sess. Caller holds mu.
func (s *Store) scheduleRefresh(sess *identity.Session) {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	if sess == nil {
		return
	}
	wait := max(time.Until(sess.ExpiresAt)-s.refreshWindow, 0)
	s.refreshTimer = time.AfterFunc(wait, s.refresh)
}

func (s *Store) refresh() {
	s.mu.Lock()
	sess := s.state.Session
	if s.closed || sess == nil {
		s.mu.Unlock()
		return
	}
	c := s.client
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	if _, err := c.Refresh(ctx); err != nil {
		if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrSessionExpired) {
			return
		}
		slog.Warn("token refresh failed; retrying", "error", err, "retryIn", s.refreshRetry.String())
		s.mu.Lock()
		if !s.closed && s.state.Session == sess {
			if s.refreshTimer != nil {
				s.refreshTimer.Stop()
			}
			s.refreshTimer = time.AfterFunc(s.refreshRetry, s.refresh)
		}
		s.mu.Unlock()
	}
}

// publish installs next as the current snapshot and notifies waiters and
// subscribers. Caller holds mu.
func (s *Store) publish(next State) {
	s.state = next
	close(s.changed)
	s.changed = make(chan struct{})

	for _, ch := range s.subs {
		select {
		case ch <- next:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- next
		}
	}
}

func (s *Store) waitFor(ctx context.Context, cond func(State) bool) (State, error) {
	for {
		s.mu.Lock()
		st, changed := s.state, s.changed
		closed := s.closed
		s.mu.Unlock()

		if cond(st) {
			return st, nil
		}
		if closed {
			return st, ErrClosed
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func (s *Store) identityClient() *identity.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}
