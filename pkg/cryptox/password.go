package cryptox

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("cryptox: empty password")

// HashPassword returns a salted bcrypt digest of password at the package's
// fixed cost. Errors come from the bcrypt library (e.g. password longer than
// 72 bytes) and are not recoverable by the caller.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches the bcrypt digest.
// Malformed digests simply don't match.
func VerifyPassword(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

var (
	dummyOnce   sync.Once
	dummyDigest []byte
)

// BurnVerify performs a throwaway comparison so the "user not found" path of
// a credential check spends about as long in bcrypt as a real mismatch.
func BurnVerify(password string) {
	dummyOnce.Do(func() {
		dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("authcore-timing-equaliser"), passwordHashCost())
	})
	_ = bcrypt.CompareHashAndPassword(dummyDigest, []byte(password))
}
