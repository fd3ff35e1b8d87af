// Package validation checks request input before any backend call is made.
package validation

import (
	"fmt"
	"net/mail"
	"strings"
)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func required(errs []FieldError, field, value string, maxLen int) []FieldError {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return append(errs, FieldError{Field: field, Message: field + " is required"})
	case maxLen > 0 && len(v) > maxLen:
		return append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, maxLen)})
	}
	return errs
}

func email(errs []FieldError, field, value string) []FieldError {
	v := strings.TrimSpace(value)
	if v == "" {
		return append(errs, FieldError{Field: field, Message: field + " is required"})
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return append(errs, FieldError{Field: field, Message: field + " must be a valid email address"})
	}
	return errs
}
