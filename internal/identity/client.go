package identity

import (
	"context"
	"errors"
	"sync"
	"time"
)

// feedBuffer is the capacity of each subscriber channel.
const feedBuffer = 16

// Client holds one caller's session against a Provider and announces every
// session change on its feed, in the order the changes happen.
type Client struct {
	provider Provider
	now      func() time.Time

	mu      sync.Mutex
	token   string
	session *Session
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// NewClient creates a Client. A non-empty accessToken is kept as a pending
// session that GetSession verifies on first use.
func NewClient(p Provider, accessToken string) *Client {
	return &Client{
		provider: p,
		now:      time.Now,
		token:    accessToken,
		subs:     make(map[int]chan Event),
	}
}

// Subscribe returns the change feed and a function that ends the subscription.
func (c *Client) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, feedBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Session returns the locally held session without contacting the provider.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// GetSession returns the current session. A pending token is verified with
// the provider; a token the provider rejects is dropped.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.session != nil && !c.session.Expired(c.now()) {
		sess := c.session
		c.mu.Unlock()
		return sess, nil
	}
	token := c.token
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.mu.Unlock()

	if token == "" {
		return nil, nil
	}

	sess, err := c.provider.GetSession(ctx, token)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrSessionExpired) {
			c.token = ""
			c.session = nil
		}
		return nil, err
	}
	c.session = sess
	c.token = sess.AccessToken
	return sess, nil
}

// Restore verifies the held token and re-announces it after the backend
// connection is replaced. Only a rejected or expired token, or no token at
// all, announces signed-out. Any other failure keeps held as the local
// session without an event, and the error is returned.
func (c *Client) Restore(ctx context.Context, held *Session) (*Session, error) {
	sess, err := c.GetSession(ctx)
	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrSessionExpired):
		c.setAndEmit(ctx, EventSignedOut, nil)
		return nil, err
	case err != nil:
		c.mu.Lock()
		if c.session == nil && held != nil {
			c.session = held
			c.token = held.AccessToken
		}
		c.mu.Unlock()
		return held, err
	case sess == nil:
		c.setAndEmit(ctx, EventSignedOut, nil)
		return nil, nil
	}
	c.setAndEmit(ctx, EventSignedIn, sess)
	return sess, nil
}

// SignIn authenticates and announces the new session.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	sess, err := c.provider.SignIn(ctx, creds)
	if err != nil {
		return nil, err
	}
	c.setAndEmit(ctx, EventSignedIn, sess)
	return sess, nil
}

// SignUp registers, signs in and announces the new session.
func (c *Client) SignUp(ctx context.Context, creds Credentials, fullName string) (*Session, error) {
	sess, err := c.provider.SignUp(ctx, creds, fullName)
	if err != nil {
		return nil, err
	}
	c.setAndEmit(ctx, EventSignedIn, sess)
	return sess, nil
}

// SignOut drops the local session and announces it even when the provider
// fails to revoke the token; the provider error is still returned.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	if c.session != nil {
		token = c.session.AccessToken
	}
	c.mu.Unlock()

	var err error
	if token != "" {
		err = c.provider.SignOut(ctx, token)
	}
	c.setAndEmit(ctx, EventSignedOut, nil)
	return err
}

// Refresh exchanges the current token for a new one. A rejected token ends
// the session.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	current := c.Session()
	if current == nil {
		return nil, ErrInvalidToken
	}

	sess, err := c.provider.Refresh(ctx, current.AccessToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrSessionExpired) {
			c.setAndEmit(ctx, EventSignedOut, nil)
		}
		return nil, err
	}
	c.setAndEmit(ctx, EventTokenRefreshed, sess)
	return sess, nil
}

// UpdateUser changes the display name and announces the updated session.
func (c *Client) UpdateUser(ctx context.Context, fullName string) (*Session, error) {
	current := c.Session()
	if current == nil {
		return nil, ErrInvalidToken
	}

	sess, err := c.provider.UpdateUser(ctx, current.AccessToken, fullName)
	if err != nil {
		return nil, err
	}
	c.setAndEmit(ctx, EventUserUpdated, sess)
	return sess, nil
}

// Close ends every subscription. Later events are not delivered.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// setAndEmit replaces the session and delivers the event while holding the
// lock, so concurrent changes reach subscribers in the order they were applied.
func (c *Client) setAndEmit(ctx context.Context, kind EventKind, sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = sess
	c.token = ""
	if sess != nil {
		c.token = sess.AccessToken
	}
	if c.closed {
		return
	}

	ev := Event{Kind: kind, Session: sess}
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}
