package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/iliyamo/storefront-auth/internal/service"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
	FullName string `json:"fullName" validate:"required,max=100"`
}

func TestStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"Abcdefg1":   true,
		"Abcdefg!":   true,
		"abcdefg1":   false,
		"ABCDEFG1":   false,
		"Abcdefgh":   false,
		"Ab1!":       false,
		"Pässwört9x": true,
	}
	// 43 characters but 83 bytes.
	cases["Aa1"+strings.Repeat("é", 40)] = false
	for in, want := range cases {
		if got := StrongPassword(in); got != want {
			t.Errorf("StrongPassword(%q)=%v want %v", in, got, want)
		}
	}
}

func TestValidateMessages(t *testing.T) {
	v := New()
	cases := []struct {
		name string
		in   signup
		want string
	}{
		{"short password", signup{"a@b.co", "Ab1", "Ada"}, "password must be at least 8 characters"},
		{"weak password", signup{"a@b.co", "abcdefgh", "Ada"}, "password must be at least 8 characters and mix"},
		{"multibyte over bcrypt limit", signup{"a@b.co", "Aa1" + strings.Repeat("é", 40), "Ada"}, "password must be at most 72 bytes"},
		{"bad email", signup{"nope", "Abcdefg1", "Ada"}, "email must be a valid email address"},
		{"missing name", signup{"a@b.co", "Abcdefg1", ""}, "fullName is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.in)
			var ae *service.AppError
			if !errors.As(err, &ae) || ae.Code != service.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.HasPrefix(ae.Message, tc.want) {
				t.Fatalf("message %q does not start with %q", ae.Message, tc.want)
			}
		})
	}
	if err := v.Validate(signup{"a@b.co", "Abcdefg1", "Ada"}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}
