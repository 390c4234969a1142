package security

import (
	"errors"
	"strings"
	"unicode"
)

// MinPasswordLength is the shortest password accepted at registration and reset.
const MinPasswordLength = 8

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "12345678": {}, "123456789": {},
	"qwertyuiop": {}, "iloveyou": {}, "11111111": {}, "abc12345": {}, "letmein1": {},
	"welcome1": {}, "admin123": {}, "sunshine": {}, "football": {}, "passw0rd": {},
}

// ValidatePassword applies the password policy: minimum length, not entirely numeric,
// not a well-known password and not derived from the account's email.
func ValidatePassword(password, email string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	allDigits := true
	for _, r := range password {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return errors.New("password must not be entirely numeric")
	}
	lower := strings.ToLower(password)
	if _, ok := commonPasswords[lower]; ok {
		return errors.New("password is too common")
	}
	if local, _, ok := strings.Cut(strings.ToLower(email), "@"); ok && len(local) >= 3 && strings.Contains(lower, local) {
		return errors.New("password is too similar to the email address")
	}
	return nil
}
