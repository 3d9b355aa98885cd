package auth

import (
	"unicode"

	"whisper/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type CredentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// ValidateRegister checks shape via validator tags, then the password
// complexity rules that tags cannot express.
func ValidateRegister(req CredentialsRequest) error {
	if err := validate.Struct(req); err != nil {
		return errors.Wrap(errors.CodeInvalidArgument, "invalid registration request", err)
	}
	if !isPasswordComplex(req.Password) {
		return errors.ErrInvalidPassword
	}
	return nil
}

// ValidateLogin only checks presence; complexity is a registration rule.
func ValidateLogin(req CredentialsRequest) error {
	if req.Username == "" || req.Password == "" {
		return errors.InvalidArg("username and password are required")
	}
	return nil
}

func isPasswordComplex(s string) bool {
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
