package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the email/password pair does not match a user.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// ErrRateLimited is returned when too many sign-in attempts were made for an email.
var ErrRateLimited = errors.New("too many sign-in attempts")

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// Revocations records revoked token ids.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Limiter counts attempts per key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
	Reset(ctx context.Context, key string)
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost sets the cost used to hash new passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithRevocations enables server-side token revocation on sign-out and refresh.
func WithRevocations(r Revocations) Option {
	return func(s *Service) { s.revocations = r }
}

// WithRateLimit caps sign-in attempts per email within window.
func WithRateLimit(l Limiter, limit int64, window time.Duration) Option {
	return func(s *Service) {
		s.limiter = l
		s.rateLimit = limit
		s.rateWindow = window
	}
}

// Service implements Provider on top of a UserRepository and a Signer.
type Service struct {
	users       UserRepository
	signer      *Signer
	revocations Revocations
	limiter     Limiter
	rateLimit   int64
	rateWindow  time.Duration
	bcryptCost  int
	now         func() time.Time
}

// NewService creates a new identity Service.
func NewService(users UserRepository, signer *Signer, opts ...Option) *Service {
	s := &Service{
		users:      users,
		signer:     signer,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp registers a new user and opens a session for it.
func (s *Service) SignUp(ctx context.Context, creds Credentials, fullName string) (*Session, error) {
	email := normalizeEmail(creds.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidCredentials)
	}
	if len(creds.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidCredentials, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &User{
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	slog.Info("user signed up", "userId", u.ID)
	return s.open(u)
}

// SignIn verifies credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	email := normalizeEmail(creds.Email)
	limitKey := "signin:" + email

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, limitKey, s.rateLimit, s.rateWindow)
		if err != nil {
			slog.Warn("sign-in rate limiter unavailable", "error", err)
		} else if !ok {
			return nil, ErrRateLimited
		}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		s.limiter.Reset(ctx, limitKey)
	}

	return s.open(u)
}

// SignOut revokes the token. Invalid or expired tokens are already unusable
// and are ignored.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.signer.Parse(accessToken)
	if err != nil {
		return nil
	}
	return s.revoke(ctx, claims)
}

// GetSession verifies accessToken and returns the session it represents.
func (s *Service) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	claims, err := s.verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("loading session user: %w", err)
	}

	return &Session{AccessToken: accessToken, ExpiresAt: claims.ExpiresAt, User: *u}, nil
}

// Refresh exchanges a valid token for a new one and revokes the old token.
func (s *Service) Refresh(ctx context.Context, accessToken string) (*Session, error) {
	claims, err := s.verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("loading session user: %w", err)
	}

	sess, err := s.open(u)
	if err != nil {
		return nil, err
	}
	if err := s.revoke(ctx, claims); err != nil {
		slog.Warn("failed to revoke refreshed token", "error", err, "userId", u.ID)
	}
	return sess, nil
}

// UpdateUser changes the user's display name and returns a session carrying
// the updated user.
func (s *Service) UpdateUser(ctx context.Context, accessToken, fullName string) (*Session, error) {
	claims, err := s.verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	u, err := s.users.UpdateFullName(ctx, claims.UserID, strings.TrimSpace(fullName))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}

	return &Session{AccessToken: accessToken, ExpiresAt: claims.ExpiresAt, User: *u}, nil
}

func (s *Service) open(u *User) (*Session, error) {
	token, claims, err := s.signer.Mint(u)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: token, ExpiresAt: claims.ExpiresAt, User: *u}, nil
}

func (s *Service) verify(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.signer.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return nil, fmt.Errorf("checking token revocation: %w", err)
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}

	return claims, nil
}

func (s *Service) revoke(ctx context.Context, claims *Claims) error {
	if s.revocations == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if err := s.revocations.Revoke(ctx, claims.TokenID, ttl); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
