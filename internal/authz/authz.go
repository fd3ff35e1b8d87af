// Package authz derives the privileged flag from a profile and applies the
// route access rule.
package authz

import (
	"net/url"
	"strings"

	"github.com/whispersoftheland/whispers/internal/profile"
)

// IsPrivileged reports whether p grants moderation rights. Absent and
// transient profiles never do.
func IsPrivileged(p *profile.Profile) bool {
	return p != nil && !p.Transient && p.Role == profile.RolePrivileged
}

// Allow reports whether a protected route may be served: someone must be
// signed in, and privileged routes additionally require the privileged flag.
func Allow(signedIn, isPrivileged, requirePrivileged bool) bool {
	if !signedIn {
		return false
	}
	return !requirePrivileged || isPrivileged
}

// SignInPath is where denied requests are sent.
const SignInPath = "/auth/sign-in"

// SignInRedirect returns the sign-in location that returns to from afterwards.
func SignInRedirect(from string) string {
	if !SafeReturnPath(from) {
		return SignInPath
	}
	return SignInPath + "?from=" + url.QueryEscape(from)
}

// SafeReturnPath reports whether from is a local absolute path that is safe
// to redirect to after sign-in.
func SafeReturnPath(from string) bool {
	if from == "" || !strings.HasPrefix(from, "/") {
		return false
	}
	// Scheme-relative or backslash forms leave the site in some browsers.
	if strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return false
	}
	u, err := url.Parse(from)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
