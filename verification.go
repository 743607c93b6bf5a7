package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultVerificationCodeTTL bounds how long an email verification code stays
// redeemable.
const DefaultVerificationCodeTTL = 24 * time.Hour

// VerificationManager confirms email ownership with the same replace-on-issue
// code shape as password recovery, on a longer fuse.
type VerificationManager struct {
	repo   RepositoryManager
	hasher PasswordHasher
	mailer Mailer
	logger Logger
	ttl    time.Duration
	now    func() time.Time
}

type VerificationManagerOption func(*VerificationManager)

func WithVerificationTTL(ttl time.Duration) VerificationManagerOption {
	return func(m *VerificationManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithVerificationClock(now func() time.Time) VerificationManagerOption {
	return func(m *VerificationManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithVerificationLogger(logger Logger) VerificationManagerOption {
	return func(m *VerificationManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewVerificationManager(repo RepositoryManager, hasher PasswordHasher, mailer Mailer, opts ...VerificationManagerOption) *VerificationManager {
	m := &VerificationManager{
		repo:   repo,
		hasher: hasher,
		mailer: mailer,
		logger: defLogger{},
		ttl:    DefaultVerificationCodeTTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Request issues a verification code for the user and mails it. Already
// verified accounts are a no-op.
func (m *VerificationManager) Request(ctx context.Context, user *User) error {
	if user == nil {
		return errors.New("user must not be nil", errors.CategoryBadInput)
	}

	if user.IsVerified {
		return nil
	}

	code, err := generateNumericCode(6)
	if err != nil {
		return err
	}

	hash, err := m.hasher.Hash(code)
	if err != nil {
		return err
	}

	record := &VerificationToken{
		UserID:    user.ID,
		CodeHash:  hash,
		ExpiresAt: m.now().Add(m.ttl),
	}

	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := m.repo.VerificationTokens().ReplaceTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store verification code")
	}

	m.deliver(user.Email, "verify-email", map[string]any{
		"name": user.Name,
		"code": code,
	})

	return nil
}

// Confirm redeems a verification code: the account is flagged verified and
// the token deleted in one transaction.
func (m *VerificationManager) Confirm(ctx context.Context, email, code string) error {
	user, err := m.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidOrExpiredCode
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	token, err := m.repo.VerificationTokens().GetByUser(ctx, user.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidOrExpiredCode
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to look up verification code")
	}

	if token.Expired(m.now()) {
		return ErrInvalidOrExpiredCode
	}

	if err := m.hasher.Compare(token.CodeHash, code); err != nil {
		return ErrInvalidOrExpiredCode
	}

	return m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := m.repo.Users().SetVerifiedTx(ctx, tx, user.ID); err != nil {
			return err
		}
		return m.repo.VerificationTokens().DeleteByUserTx(ctx, tx, user.ID)
	})
}

func (m *VerificationManager) deliver(to, template string, params map[string]any) {
	if m.mailer == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := m.mailer.Send(ctx, to, template, params); err != nil {
			m.logger.Warn("VerificationManager failed to deliver %s mail: %v", template, err)
		}
	}()
}
