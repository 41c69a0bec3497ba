package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is enforced on every new password
	MinPasswordLength = 8

	temporaryPasswordLength = 10
	// No 0/O, 1/l/I: the password is read from an email and typed by hand
	temporaryPasswordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"
)

// dummyHash is compared against when the email is unknown so that login
// takes the same time either way
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("smartworking-dummy-password"), bcrypt.DefaultCost)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// burnPasswordCheck spends a bcrypt comparison without a real hash
func burnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// GenerateTemporaryPassword returns a random password from an unambiguous alphabet
func GenerateTemporaryPassword() (string, error) {
	limit := big.NewInt(int64(len(temporaryPasswordAlphabet)))
	out := make([]byte, temporaryPasswordLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = temporaryPasswordAlphabet[n.Int64()]
	}
	return string(out), nil
}
