package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadPIN = errors.New("PIN must be exactly 4 digits")

// ValidPIN reports whether pin is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// HashPIN returns the bcrypt hash stored for a member PIN.
func HashPIN(pin string) (string, error) {
	if !ValidPIN(pin) {
		return "", ErrBadPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPIN compares a candidate PIN against a stored hash.
func CheckPIN(hash, pin string) bool {
	if hash == "" || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
