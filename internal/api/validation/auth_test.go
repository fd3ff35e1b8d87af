package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whispersoftheland/whispers/internal/api/validation"
)

func fields(errs []validation.FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateSignUp(t *testing.T) {
	valid := validation.SignUpRequest{
		Email:           "ama@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		FullName:        "Ama Mensah",
	}

	tests := []struct {
		name   string
		mutate func(r *validation.SignUpRequest)
		want   []string
	}{
		{name: "valid", mutate: func(r *validation.SignUpRequest) {}, want: []string{}},
		{name: "short password", mutate: func(r *validation.SignUpRequest) { r.Password, r.ConfirmPassword = "abc", "abc" }, want: []string{"password"}},
		{name: "six characters is enough", mutate: func(r *validation.SignUpRequest) { r.Password, r.ConfirmPassword = "abcdef", "abcdef" }, want: []string{}},
		{name: "mismatch", mutate: func(r *validation.SignUpRequest) { r.ConfirmPassword = "secret2" }, want: []string{"confirmPassword"}},
		{name: "missing name", mutate: func(r *validation.SignUpRequest) { r.FullName = "  " }, want: []string{"fullName"}},
		{name: "bad email", mutate: func(r *validation.SignUpRequest) { r.Email = "Ama <ama@example.com>" }, want: []string{"email"}},
		{name: "everything wrong", mutate: func(r *validation.SignUpRequest) { *r = validation.SignUpRequest{ConfirmPassword: "x"} }, want: []string{"email", "fullName", "password", "confirmPassword"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			assert.Equal(t, tt.want, fields(validation.ValidateSignUp(req)))
		})
	}
}

func TestValidateSignIn(t *testing.T) {
	assert.Empty(t, validation.ValidateSignIn(validation.SignInRequest{Email: "ama@example.com", Password: "x"}))
	assert.Equal(t, []string{"email", "password"}, fields(validation.ValidateSignIn(validation.SignInRequest{Email: "nope"})))
}

func TestValidateProfileUpdate(t *testing.T) {
	assert.Empty(t, validation.ValidateProfileUpdate("Ama"))
	errs := validation.ValidateProfileUpdate("")
	assert.Len(t, errs, 1)
	assert.Equal(t, "fullName is required", errs[0].Message)
}
