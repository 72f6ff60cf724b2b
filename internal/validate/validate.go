// Package validate plugs go-playground/validator into echo and adds the
// storefront password policy as the "password" tag.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/storefront-auth/internal/service"
	"github.com/iliyamo/storefront-auth/internal/utils"
)

// MinPasswordLength is the shortest password the policy accepts.
const MinPasswordLength = 8

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	return &Validator{v: v}
}

// StrongPassword reports whether p has at least MinPasswordLength
// characters, an upper- and a lower-case letter, and a digit or symbol, and
// fits in utils.MaxPasswordBytes bytes.
func StrongPassword(p string) bool {
	if len([]rune(p)) < MinPasswordLength || len(p) > utils.MaxPasswordBytes {
		return false
	}
	var upper, lower, other bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			other = true
		}
	}
	return upper && lower && other
}

// Validate returns a VALIDATION_ERROR describing the first failing field.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return service.ErrValidation("invalid request")
	}
	return service.ErrValidation(message(ve[0]))
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "password":
		if v, ok := fe.Value().(string); ok && len(v) > utils.MaxPasswordBytes {
			return fmt.Sprintf("%s must be at most %d bytes", field, utils.MaxPasswordBytes)
		}
		return fmt.Sprintf("%s must be at least %d characters and mix upper case, lower case and a digit or symbol",
			field, MinPasswordLength)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	}
	return field + " is invalid"
}
