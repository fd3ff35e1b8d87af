package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/whispersoftheland/whispers/internal/identity"
	"github.com/whispersoftheland/whispers/internal/profile"
)

// Source returns the profile repository of the current backend connection.
// It is called on every reconciliation so a reconnect takes effect at once.
type Source func() profile.Repository

// Config tunes reconciliation.
type Config struct {
	// ProvisionDelay pauses before the first lookup to give backend-side
	// provisioning a head start. Best effort only; zero disables it.
	ProvisionDelay time.Duration
	// NotFoundRetries is how many extra lookups are made while the profile is
	// missing, with exponential backoff starting at RetryInterval.
	NotFoundRetries uint
	RetryInterval   time.Duration
	// Timeout bounds one reconciliation. On expiry the transient default is used.
	Timeout time.Duration
}

// Outcome reports how the profile was obtained.
type Outcome int

const (
	OutcomeFetched Outcome = iota
	OutcomeCreated
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFetched:
		return "fetched"
	case OutcomeCreated:
		return "created"
	case OutcomeFallback:
		return "fallback"
	}
	return "unknown"
}

// Result is the profile adopted for an identity. Profile is never nil.
type Result struct {
	Profile *profile.Profile
	Outcome Outcome
}

// Reconciler makes sure a usable profile exists for a signed-in identity.
type Reconciler struct {
	profiles Source
	cfg      Config
	now      func() time.Time
}

// New creates a new Reconciler.
func New(profiles Source, cfg Config) *Reconciler {
	return &Reconciler{
		profiles: profiles,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Reconcile loads the profile of u, creating it when it does not exist.
// Datastore failures are logged and answered with a transient default
// profile. The only error returned is the cancellation of ctx, in which case
// the caller has moved on and the result must be discarded.
func (r *Reconciler) Reconcile(ctx context.Context, u identity.User) (Result, error) {
	if r.cfg.ProvisionDelay > 0 {
		timer := time.NewTimer(r.cfg.ProvisionDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	opCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	repo := r.profiles()

	p, err := r.lookup(opCtx, repo, u)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	switch {
	case err == nil:
		slog.Debug("profile fetched", "userId", u.ID, "role", p.Role)
		return Result{Profile: p, Outcome: OutcomeFetched}, nil
	case errors.Is(err, profile.ErrNotFound):
		return r.create(ctx, opCtx, repo, u)
	default:
		slog.Error("profile lookup failed; using transient default", "userId", u.ID, "error", err)
		return r.fallback(u), nil
	}
}

// lookup reads the profile, retrying with backoff only while it is missing.
func (r *Reconciler) lookup(ctx context.Context, repo profile.Repository, u identity.User) (*profile.Profile, error) {
	op := func() (*profile.Profile, error) {
		p, err := repo.GetByID(ctx, u.ID)
		if err != nil && !errors.Is(err, profile.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return p, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.NotFoundRetries+1),
	)
}

// create makes exactly one attempt to insert the default profile.
func (r *Reconciler) create(ctx, opCtx context.Context, repo profile.Repository, u identity.User) (Result, error) {
	slog.Info("profile not found, creating", "userId", u.ID)

	p := &profile.Profile{
		ID:       u.ID,
		Email:    u.Email,
		FullName: DisplayName(u),
		Role:     profile.RoleRegular,
	}
	err := repo.Create(opCtx, p)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if err != nil {
		slog.Error("profile creation failed; using transient default", "userId", u.ID, "error", err)
		return r.fallback(u), nil
	}

	return Result{Profile: p, Outcome: OutcomeCreated}, nil
}

func (r *Reconciler) fallback(u identity.User) Result {
	return Result{
		Profile: profile.Default(u.ID, u.Email, DisplayName(u), r.now().UTC()),
		Outcome: OutcomeFallback,
	}
}

// DisplayName is the name a new profile starts with: the name given at
// sign-up, else the local part of the email address.
func DisplayName(u identity.User) string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}
