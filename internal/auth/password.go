package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"ledgermate-backend/pkg/logger"
)

// HashPassword generates a bcrypt hash for the given password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plaintext password with a stored bcrypt hash.
// Always returns false on error so callers cannot distinguish a bad password
// from a corrupt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			logger.Get().Warn("unexpected error comparing password hash", "error", err)
		}
		return false
	}
	return true
}
