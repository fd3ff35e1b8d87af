package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that are malformed, forged, revoked
// or belong to a user that no longer exists.
var ErrInvalidToken = errors.New("invalid session token")

// ErrSessionExpired is returned for well-formed tokens past their expiry.
var ErrSessionExpired = errors.New("session expired")

type accessClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Claims is the verified content of an access token.
type Claims struct {
	TokenID   string
	UserID    uuid.UUID
	Email     string
	FullName  string
	ExpiresAt time.Time
}

// Signer mints and verifies HS256 access tokens.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. ttl is the lifetime of every minted token.
func NewSigner(secret, issuer string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Mint issues a new access token for u.
func (s *Signer) Mint(u *User) (string, Claims, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	jti := uuid.NewString()

	c := accessClaims{
		Email: u.Email,
		Name:  u.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("signing token: %w", err)
	}

	return token, Claims{
		TokenID:   jti,
		UserID:    u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// Parse verifies raw and returns its claims.
func (s *Signer) Parse(raw string) (*Claims, error) {
	var c accessClaims
	_, err := jwt.ParseWithClaims(raw, &c,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		TokenID:   c.ID,
		UserID:    id,
		Email:     c.Email,
		FullName:  c.Name,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// WithClock replaces the time source used for minting and verification.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}
