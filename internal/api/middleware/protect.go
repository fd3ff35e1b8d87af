package middleware

import (
	"net/http"
	"time"

	"github.com/whispersoftheland/whispers/internal/authz"
)

// Protect serves the route only to signed-in clients, and only to privileged
// ones when requirePrivileged is set. Everyone else is redirected to sign-in
// with the requested location preserved. The decision waits up to
// settleTimeout for the session to settle so a reconciling profile is never
// judged early.
func Protect(requirePrivileged bool, settleTimeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := Settled(r, settleTimeout)
			if !authz.Allow(st.SignedIn(), st.IsPrivileged, requirePrivileged) {
				http.Redirect(w, r, authz.SignInRedirect(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithState(r.Context(), st)))
		})
	}
}
