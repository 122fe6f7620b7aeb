package auth

import (
	"regexp"
	"strings"

	"github.com/sakif/mentorflow/internal/apperror"
)

// Validation messages shown verbatim next to the form.
const (
	MsgInvalidEmail     = "Please enter a valid email"
	MsgPasswordMismatch = "Passwords do not match!"
	MsgWeakPassword     = "Password must be at least 10 characters and include uppercase, lowercase, number and special character."
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// specialChars is the set that counts as a "special character".
const specialChars = `!@#$%^&*(),.?":{}|<>`

// ValidEmail is the loose shape check used by both login and sign-up:
// something@something.something. Real validation is the confirmation mail.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// StrongPassword requires 10+ characters with at least one upper-case letter,
// one lower-case letter, one digit and one special character.
func StrongPassword(pw string) bool {
	if len([]rune(pw)) < 10 {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	return upper && lower && digit && special
}

// ValidateSignUp runs the sign-up checks in form order (email, confirmation,
// strength) and returns the first failure as a validation error.
func ValidateSignUp(email, password, confirm string) error {
	if !ValidEmail(email) {
		return apperror.ValidationFailed("email", MsgInvalidEmail)
	}
	if password != confirm {
		return apperror.ValidationFailed("confirm_password", MsgPasswordMismatch)
	}
	if !StrongPassword(password) {
		return apperror.ValidationFailed("password", MsgWeakPassword)
	}
	return nil
}
