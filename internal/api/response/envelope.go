package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Error codes shared by the handlers.
const (
	CodeInvalidJSON   = "INVALID_JSON"
	CodeInvalidID     = "INVALID_ID"
	CodeInvalidParam  = "INVALID_PARAM"
	CodeInvalidForm   = "INVALID_FORM"
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInvalidLogin  = "INVALID_CREDENTIALS"
	CodeEmailTaken    = "EMAIL_TAKEN"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInFlight      = "REQUEST_IN_FLIGHT"
	CodeUnavailable   = "SERVICE_UNAVAILABLE"
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeUpstream      = "UPSTREAM_ERROR"
	CodeInternal      = "INTERNAL_ERROR"
)

// Meta holds metadata for every API response. Notice carries a user-facing
// message when the data was served in a degraded mode.
type Meta struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	Notice    string `json:"notice,omitempty"`
}

// ListMeta extends Meta with pagination information. Fallback is set when the
// items are sample content rather than live data.
type ListMeta struct {
	Meta
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	Limit    int  `json:"limit"`
	Fallback bool `json:"fallback,omitempty"`
}

// Page describes one page of a list response.
type Page struct {
	Total    int
	Page     int
	Limit    int
	Fallback bool
	Notice   string
}

// Error represents a structured API error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope is the standard API response wrapper. Meta is either Meta or ListMeta.
type Envelope struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
	Meta  any    `json:"meta"`
}

// NewMeta stamps the current time on requestID, generating one when empty.
func NewMeta(requestID string) Meta {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return Meta{
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// JSON writes env with the given status code.
func JSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Success writes a successful JSON response.
func Success(w http.ResponseWriter, status int, data any, requestID string) {
	JSON(w, status, Envelope{Data: data, Meta: NewMeta(requestID)})
}

// List writes one page of items with pagination metadata.
func List(w http.ResponseWriter, status int, data any, p Page, requestID string) {
	meta := NewMeta(requestID)
	meta.Notice = p.Notice
	JSON(w, status, Envelope{
		Data: data,
		Meta: ListMeta{
			Meta:     meta,
			Total:    p.Total,
			Page:     p.Page,
			Limit:    p.Limit,
			Fallback: p.Fallback,
		},
	})
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Err writes an error JSON response.
func Err(w http.ResponseWriter, status int, code, message, requestID string) {
	ErrWithDetails(w, status, code, message, nil, requestID)
}

// ErrWithDetails writes an error JSON response with additional details.
func ErrWithDetails(w http.ResponseWriter, status int, code, message string, details any, requestID string) {
	JSON(w, status, Envelope{
		Error: &Error{Code: code, Message: message, Details: details},
		Meta:  NewMeta(requestID),
	})
}
