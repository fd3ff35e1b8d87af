package identity

import "context"

// Provider is the identity backend: it authenticates credentials and issues,
// verifies, refreshes and revokes sessions. It keeps no per-client state.
type Provider interface {
	SignUp(ctx context.Context, creds Credentials, fullName string) (*Session, error)
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetSession(ctx context.Context, accessToken string) (*Session, error)
	Refresh(ctx context.Context, accessToken string) (*Session, error)
	UpdateUser(ctx context.Context, accessToken, fullName string) (*Session, error)
}
