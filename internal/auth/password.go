package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

// Registration is the input of user sign-up
type Registration struct {
	Username string `validate:"required,min=2,max=32,alphanum"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"`
}

// ValidationError names the first field that failed validation
type ValidationError struct {
	Field string
	Tag   string
}

func (e *ValidationError) Error() string {
	return "field \"" + e.Field + "\" failed \"" + e.Tag + "\" validation"
}

// Validate checks registration fields, it returns *ValidationError on failure
func (r Registration) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{Field: verrs[0].Field(), Tag: verrs[0].Tag()}
	}
	return err
}

// HashPassword returns bcrypt hash of password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
