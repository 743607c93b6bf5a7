package accounts

import (
	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultHashingCost is the bcrypt work factor applied when none is
	// configured.
	DefaultHashingCost = 12
	// MinHashingCost is the floor below which a configured cost is raised.
	MinHashingCost = 10
)

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher on top of x/crypto bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given work factor; costs below
// MinHashingCost are raised to DefaultHashingCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < MinHashingCost {
		cost = DefaultHashingCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	return string(hash), nil
}

// Compare checks password against hash; a mismatch maps to
// ErrInvalidCredentials so callers never leak bcrypt internals.
func (h *BcryptHasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to compare password")
	}
	return nil
}
