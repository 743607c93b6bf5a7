package accounts

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultResetCodeTTL bounds how long a recovery code stays redeemable.
const DefaultResetCodeTTL = 15 * time.Minute

// ResetCodeManager drives password recovery with short-lived 6-digit codes.
// Requesting a code always reports success so the endpoint cannot be used to
// enumerate accounts. Verify checks a code without consuming it, which lets a
// client confirm the code on one screen and submit the new password on the
// next; only Finalize burns the code.
type ResetCodeManager struct {
	repo   RepositoryManager
	hasher PasswordHasher
	mailer Mailer
	logger Logger
	ttl    time.Duration
	now    func() time.Time
}

type ResetCodeManagerOption func(*ResetCodeManager)

func WithResetCodeTTL(ttl time.Duration) ResetCodeManagerOption {
	return func(m *ResetCodeManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithResetCodeClock(now func() time.Time) ResetCodeManagerOption {
	return func(m *ResetCodeManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithResetCodeLogger(logger Logger) ResetCodeManagerOption {
	return func(m *ResetCodeManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewResetCodeManager(repo RepositoryManager, hasher PasswordHasher, mailer Mailer, opts ...ResetCodeManagerOption) *ResetCodeManager {
	m := &ResetCodeManager{
		repo:   repo,
		hasher: hasher,
		mailer: mailer,
		logger: defLogger{},
		ttl:    DefaultResetCodeTTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Request issues a new recovery code for the account, replacing any code
// already outstanding. Unknown emails return nil without side effects.
func (m *ResetCodeManager) Request(ctx context.Context, email string) error {
	user, err := m.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			m.logger.Debug("ResetCodeManager ignored request for unknown email")
			return nil
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	code, err := generateNumericCode(6)
	if err != nil {
		return err
	}

	hash, err := m.hasher.Hash(code)
	if err != nil {
		return err
	}

	record := &ResetToken{
		UserID:    user.ID,
		CodeHash:  hash,
		ExpiresAt: m.now().Add(m.ttl),
	}

	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := m.repo.ResetTokens().ReplaceTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store reset code")
	}

	m.deliver(user.Email, "password-reset", map[string]any{
		"name":       user.Name,
		"code":       code,
		"expires_in": m.ttl.String(),
	})

	return nil
}

// Verify checks a code against the live token without consuming it. Unknown
// email, missing token, expired token, and wrong code all collapse to
// ErrInvalidOrExpiredCode.
func (m *ResetCodeManager) Verify(ctx context.Context, email, code string) error {
	_, _, err := m.lookup(ctx, email, code)
	return err
}

// Finalize redeems a verified code: the password is replaced and the token
// deleted in one transaction, so a code cannot be spent twice.
func (m *ResetCodeManager) Finalize(ctx context.Context, email, code, newPassword string) error {
	user, _, err := m.lookup(ctx, email, code)
	if err != nil {
		return err
	}

	hash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := m.repo.Users().SetPasswordTx(ctx, tx, user.ID, hash); err != nil {
			return err
		}
		return m.repo.ResetTokens().DeleteByUserTx(ctx, tx, user.ID)
	})
	if err != nil {
		return err
	}

	m.deliver(user.Email, "password-changed", map[string]any{
		"name": user.Name,
	})

	return nil
}

func (m *ResetCodeManager) lookup(ctx context.Context, email, code string) (*User, *ResetToken, error) {
	user, err := m.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrInvalidOrExpiredCode
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	token, err := m.repo.ResetTokens().GetByUser(ctx, user.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrInvalidOrExpiredCode
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up reset code")
	}

	if token.Expired(m.now()) {
		return nil, nil, ErrInvalidOrExpiredCode
	}

	if err := m.hasher.Compare(token.CodeHash, code); err != nil {
		return nil, nil, ErrInvalidOrExpiredCode
	}

	return user, token, nil
}

func (m *ResetCodeManager) deliver(to, template string, params map[string]any) {
	if m.mailer == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.mailer.Send(ctx, to, template, params); err != nil {
			m.logger.Warn("ResetCodeManager failed to deliver %s mail: %v", template, err)
		}
	}()
}

// generateNumericCode returns n decimal digits from crypto/rand, left-padded
// with zeros.
func generateNumericCode(n int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}

	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate code")
	}

	return fmt.Sprintf("%0*d", n, v), nil
}
