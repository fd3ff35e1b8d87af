package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/whispersoftheland/whispers/internal/api/middleware"
	"github.com/whispersoftheland/whispers/internal/api/response"
	"github.com/whispersoftheland/whispers/internal/api/validation"
	"github.com/whispersoftheland/whispers/internal/authz"
	"github.com/whispersoftheland/whispers/internal/identity"
	"github.com/whispersoftheland/whispers/internal/session"
)

// Reconnector replaces the backend connection on demand.
type Reconnector interface {
	Reconnect(ctx context.Context) (bool, error)
	Generation() uint64
	Busy() bool
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FullName        string `json:"fullName"`
}

type updateProfileRequest struct {
	FullName string `json:"fullName"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

type profileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	Transient bool   `json:"transient,omitempty"`
}

// sessionResponse is the API representation of a client's session.
type sessionResponse struct {
	SignedIn     bool             `json:"signedIn"`
	Settled      bool             `json:"settled"`
	IsPrivileged bool             `json:"isPrivileged"`
	User         *userResponse    `json:"user"`
	Profile      *profileResponse `json:"profile"`
	ExpiresAt    *string          `json:"expiresAt,omitempty"`
	Reconnecting bool             `json:"reconnecting"`
	RedirectTo   string           `json:"redirectTo,omitempty"`
}

func toSessionResponse(st session.State) sessionResponse {
	resp := sessionResponse{
		SignedIn:     st.SignedIn(),
		Settled:      st.Settled(),
		IsPrivileged: st.IsPrivileged,
	}
	if st.User != nil {
		resp.User = &userResponse{
			ID:       st.User.ID.String(),
			Email:    st.User.Email,
			FullName: st.User.FullName,
		}
	}
	if st.Profile != nil {
		resp.Profile = &profileResponse{
			ID:        st.Profile.ID.String(),
			Email:     st.Profile.Email,
			FullName:  st.Profile.FullName,
			Role:      st.Profile.Role,
			Transient: st.Profile.Transient,
		}
	}
	if st.Session != nil {
		exp := st.Session.ExpiresAt.UTC().Format(timeFormat)
		resp.ExpiresAt = &exp
	}
	return resp
}

// AuthHandler handles sign-in, sign-up, sign-out, profile changes and the
// reconnect control.
type AuthHandler struct {
	holder        Reconnector
	settleTimeout time.Duration
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(holder Reconnector, settleTimeout time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		holder:        holder,
		settleTimeout: settleTimeout,
		secureCookies: secureCookies,
	}
}

// Session handles GET /auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, "")
}

// SignInPage handles GET /auth/sign-in, the target of the redirect issued
// for protected routes. It reports the current session and the validated
// return location without touching the identity provider.
func (h *AuthHandler) SignInPage(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, returnPath(r))
}

// SignIn handles POST /auth/sign-in. A safe ?from= location is echoed back
// as redirectTo so the client can return where it was sent from.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req signInRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if fieldErrors := validation.ValidateSignIn(validation.SignInRequest{Email: req.Email, Password: req.Password}); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", fieldErrors, requestID)
		return
	}

	store, ok := h.openStore(w, r, requestID)
	if !ok {
		return
	}
	if _, err := store.SignIn(r.Context(), identity.Credentials{Email: req.Email, Password: req.Password}); err != nil {
		h.authError(w, err, "sign-in", requestID)
		return
	}

	h.respond(w, r, http.StatusOK, returnPath(r))
}

// SignUp handles POST /auth/sign-up. The request is validated before the
// identity provider is called.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req signUpRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)

	fieldErrors := validation.ValidateSignUp(validation.SignUpRequest{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FullName:        req.FullName,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", fieldErrors, requestID)
		return
	}

	store, ok := h.openStore(w, r, requestID)
	if !ok {
		return
	}
	if _, err := store.SignUp(r.Context(), identity.Credentials{Email: req.Email, Password: req.Password}, req.FullName); err != nil {
		h.authError(w, err, "sign-up", requestID)
		return
	}

	h.respond(w, r, http.StatusCreated, "")
}

// SignOut handles POST /auth/sign-out. The client ends up signed out even
// when the provider could not confirm it.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	store := middleware.GetStore(r.Context())
	if store == nil {
		h.respond(w, r, http.StatusOK, "")
		return
	}
	if _, err := store.SignOut(r.Context()); err != nil {
		if errors.Is(err, session.ErrBusy) || errors.Is(err, session.ErrClosed) {
			h.authError(w, err, "sign-out", requestID)
			return
		}
		slog.Warn("sign-out not confirmed", "error", err, "requestId", requestID)
	}

	h.respond(w, r, http.StatusOK, "")
}

// UpdateProfile handles PATCH /profile.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req updateProfileRequest
	if !decodeJSON(w, r, &req, requestID) {
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)

	if fieldErrors := validation.ValidateProfileUpdate(req.FullName); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", fieldErrors, requestID)
		return
	}

	store := middleware.GetStore(r.Context())
	if store == nil {
		h.authError(w, session.ErrSignedOut, "profile update", requestID)
		return
	}
	if _, err := store.UpdateProfile(r.Context(), req.FullName); err != nil {
		h.authError(w, err, "profile update", requestID)
		return
	}

	h.respond(w, r, http.StatusOK, "")
}

type reconnectResponse struct {
	Generation uint64 `json:"generation"`
}

// Reconnect handles POST /auth/reconnect. A call made while a reconnect is
// already running does nothing and gets a 409.
func (h *AuthHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	started, err := h.holder.Reconnect(r.Context())
	if !started {
		response.Err(w, http.StatusConflict, response.CodeInFlight, "A reconnect is already in progress", requestID)
		return
	}
	if err != nil {
		slog.Error("backend reconnect failed", "error", err, "requestId", requestID)
		response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Could not reconnect to the backend", requestID)
		return
	}

	response.Success(w, http.StatusOK, reconnectResponse{Generation: h.holder.Generation()}, requestID)
}

// respond writes the client's settled session and keeps the session cookie
// in step with it.
func (h *AuthHandler) respond(w http.ResponseWriter, r *http.Request, status int, redirectTo string) {
	st := session.State{Initialized: true}
	if store := middleware.GetStore(r.Context()); store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.settleTimeout)
		var err error
		st, err = store.Settled(ctx)
		cancel()
		if err != nil {
			slog.Warn("session did not settle in time", "error", err, "requestId", middleware.GetRequestID(r.Context()))
		}
		middleware.SetSessionCookie(w, st, h.secureCookies)
	}

	resp := toSessionResponse(st)
	resp.Reconnecting = h.holder.Busy()
	resp.RedirectTo = redirectTo
	response.Success(w, status, resp, middleware.GetRequestID(r.Context()))
}

// openStore returns the client's store, creating one for an anonymous client.
func (h *AuthHandler) openStore(w http.ResponseWriter, r *http.Request, requestID string) (*session.Store, bool) {
	store := middleware.EnsureStore(r.Context())
	if store == nil {
		slog.Error("request reached an auth endpoint without a session store", "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Session unavailable", requestID)
		return nil, false
	}
	return store, true
}

// returnPath is the ?from= location when it is safe to send the client back
// to, and the home page otherwise.
func returnPath(r *http.Request) string {
	if from := r.URL.Query().Get("from"); authz.SafeReturnPath(from) {
		return from
	}
	return "/"
}

func (h *AuthHandler) authError(w http.ResponseWriter, err error, op, requestID string) {
	switch {
	case errors.Is(err, session.ErrBusy):
		response.Err(w, http.StatusConflict, response.CodeInFlight, "Another request for this session is in progress", requestID)
	case errors.Is(err, identity.ErrInvalidCredentials):
		response.Err(w, http.StatusUnauthorized, response.CodeInvalidLogin, "Invalid login credentials", requestID)
	case errors.Is(err, identity.ErrEmailTaken):
		response.Err(w, http.StatusConflict, response.CodeEmailTaken, "An account with this email already exists", requestID)
	case errors.Is(err, identity.ErrRateLimited):
		response.Err(w, http.StatusTooManyRequests, response.CodeRateLimited, "Too many sign-in attempts. Try again later.", requestID)
	case errors.Is(err, session.ErrSignedOut), errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrSessionExpired):
		response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Sign in to continue", requestID)
	case errors.Is(err, session.ErrClosed), errors.Is(err, context.DeadlineExceeded):
		response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Session temporarily unavailable", requestID)
	default:
		slog.Error(op+" failed", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to complete "+op, requestID)
	}
}

// decodeJSON reads a JSON body of at most 1MB into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidJSON, "Request body must be valid JSON", requestID)
		return false
	}
	return true
}
