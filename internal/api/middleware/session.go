package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whispersoftheland/whispers/internal/session"
)

// Cookie names.
const (
	ClientCookie  = "wotl_client"
	SessionCookie = "wotl_session"
)

const (
	storeKey contextKey = "sessionStore"
	stateKey contextKey = "sessionState"
)

const clientCookieMaxAge = 365 * 24 * 60 * 60

// StoreSource hands out the session store for a browser client.
type StoreSource interface {
	Lookup(clientID string) *session.Store
	Get(ctx context.Context, clientID, token string) *session.Store
	Discard(clientID string, s *session.Store)
}

// storeSlot carries the request's store. A client that has neither a store
// nor a token gets one only when a handler asks for it with EnsureStore.
type storeSlot struct {
	mu    sync.Mutex
	store *session.Store
	open  func() *session.Store
}

// Session attaches the client's session store to the request. Clients
// without a valid id cookie are issued one. A store is bootstrapped only for
// a client presenting a session token; anonymous clients stay storeless until
// they sign in or sign up. The session cookie is rewritten whenever the
// store's token no longer matches it, which covers background refreshes and
// sign-outs.
func Session(src StoreSource, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := cookieValue(r, ClientCookie)
			issued := false
			if _, err := uuid.Parse(clientID); err != nil {
				clientID = uuid.New().String()
				issued = true
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookie,
					Value:    clientID,
					Path:     "/",
					MaxAge:   clientCookieMaxAge,
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			token := cookieValue(r, SessionCookie)
			slot := &storeSlot{}
			if !issued {
				slot.store = src.Lookup(clientID)
			}
			if slot.store == nil && token != "" {
				store := src.Get(r.Context(), clientID, token)
				// Nothing else can hold a freshly issued id, so a token that
				// did not survive bootstrap leaves no store behind.
				if st := store.State(); issued && st.Initialized && !st.SignedIn() {
					src.Discard(clientID, store)
					SetSessionCookie(w, st, secure)
				} else {
					slot.store = store
				}
			}
			if slot.store != nil {
				if st := slot.store.State(); st.Initialized && st.AccessToken() != token {
					SetSessionCookie(w, st, secure)
				}
			}
			ctx := r.Context()
			slot.open = func() *session.Store {
				return src.Get(ctx, clientID, "")
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, storeKey, slot)))
		})
	}
}

// SetSessionCookie writes the token of st, or clears the cookie when st is
// signed out.
func SetSessionCookie(w http.ResponseWriter, st session.State, secure bool) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if st.Session == nil {
		c.MaxAge = -1
	} else {
		c.Value = st.Session.AccessToken
		c.Expires = st.Session.ExpiresAt
	}
	http.SetCookie(w, c)
}

// WithStore returns a context carrying store.
func WithStore(ctx context.Context, store *session.Store) context.Context {
	return context.WithValue(ctx, storeKey, &storeSlot{store: store})
}

// GetStore retrieves the session store from the context. It is nil for an
// anonymous client that has not needed one yet.
func GetStore(ctx context.Context) *session.Store {
	slot, ok := ctx.Value(storeKey).(*storeSlot)
	if !ok {
		return nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.store
}

// EnsureStore returns the request's session store, creating it for an
// anonymous client on first use. It returns nil outside the Session
// middleware.
func EnsureStore(ctx context.Context) *session.Store {
	slot, ok := ctx.Value(storeKey).(*storeSlot)
	if !ok {
		return nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.store == nil && slot.open != nil {
		slot.store = slot.open()
	}
	return slot.store
}

// WithState returns a context carrying a settled session snapshot.
func WithState(ctx context.Context, st session.State) context.Context {
	return context.WithValue(ctx, stateKey, st)
}

// GetState retrieves the snapshot stored by Protect, if any.
func GetState(ctx context.Context) (session.State, bool) {
	st, ok := ctx.Value(stateKey).(session.State)
	return st, ok
}

// Settled returns the request's session snapshot once it has settled, waiting
// at most timeout. A request without a store is treated as signed out.
func Settled(r *http.Request, timeout time.Duration) session.State {
	if st, ok := GetState(r.Context()); ok {
		return st
	}
	store := GetStore(r.Context())
	if store == nil {
		return session.State{Initialized: true}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	st, err := store.Settled(ctx)
	if err != nil {
		slog.Warn("session did not settle in time", "error", err, "requestId", GetRequestID(r.Context()))
	}
	return st
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
