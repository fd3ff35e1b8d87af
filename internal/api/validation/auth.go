package validation

import (
	"fmt"

	"github.com/whispersoftheland/whispers/internal/identity"
)

// SignInRequest mirrors the fields needed for sign-in validation.
type SignInRequest struct {
	Email    string
	Password string
}

// SignUpRequest mirrors the fields needed for sign-up validation.
type SignUpRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

// ValidateSignIn validates a sign-in request.
func ValidateSignIn(req SignInRequest) []FieldError {
	errs := email(nil, "email", req.Email)
	if req.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	}
	return errs
}

// ValidateSignUp validates a sign-up request. Nothing is sent to the identity
// provider unless this returns no errors.
func ValidateSignUp(req SignUpRequest) []FieldError {
	errs := email(nil, "email", req.Email)
	errs = required(errs, "fullName", req.FullName, 255)

	if len(req.Password) < identity.MinPasswordLength {
		errs = append(errs, FieldError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", identity.MinPasswordLength)})
	}
	if req.Password != req.ConfirmPassword {
		errs = append(errs, FieldError{Field: "confirmPassword", Message: "passwords do not match"})
	}
	return errs
}

// ValidateProfileUpdate validates a display name change.
func ValidateProfileUpdate(fullName string) []FieldError {
	return required(nil, "fullName", fullName, 255)
}
