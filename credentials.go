package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuthResult pairs a freshly issued session token with the public projection
// of its user.
type AuthResult struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

// CredentialStore owns the password credential lifecycle: registration,
// login, password change, and account deletion. Authentication failures
// collapse to ErrInvalidCredentials so callers cannot probe which part of a
// credential pair was wrong.
type CredentialStore struct {
	repo      RepositoryManager
	hasher    PasswordHasher
	tokens    TokenService
	logger    Logger
	useHashID bool
}

type CredentialStoreOption func(*CredentialStore)

// WithDeterministicIDs derives the user ID from the email instead of drawing
// a random UUID. Useful when accounts are provisioned from an external
// directory and re-registration must map to the same ID.
func WithDeterministicIDs() CredentialStoreOption {
	return func(s *CredentialStore) {
		s.useHashID = true
	}
}

func WithCredentialLogger(logger Logger) CredentialStoreOption {
	return func(s *CredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewCredentialStore(repo RepositoryManager, hasher PasswordHasher, tokens TokenService, opts ...CredentialStoreOption) *CredentialStore {
	s := &CredentialStore{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Register creates an account and signs the first session token. A taken
// email fails with ErrDuplicateEmail.
func (s *CredentialStore) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	if _, err := s.repo.Users().GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check email availability")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := NewUser(name, email, hash)
	if err != nil {
		return nil, err
	}

	if s.useHashID {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	user, err = s.repo.Users().Register(ctx, user)
	if err != nil {
		// a concurrent registration can win the unique index between the
		// availability probe and the insert
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "could not create user")
	}

	return s.issue(user)
}

// Login verifies an email/password pair and signs a session token. Unknown
// emails and wrong passwords are indistinguishable to the caller; a
// deactivated account reports itself only after the password checks out.
func (s *CredentialStore) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	if err := s.repo.Users().TrackLogin(ctx, user); err != nil {
		s.logger.Warn("CredentialStore failed to track login for %s: %v", user.ID, err)
	}

	return s.issue(user)
}

// ChangePassword swaps the password after re-verifying the current one.
func (s *CredentialStore) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.repo.Users().GetByID(ctx, userID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	if err := s.hasher.Compare(user.PasswordHash, current); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}

	return s.repo.Users().SetPassword(ctx, user.ID, hash)
}

// DeleteAccount permanently removes the account after re-verifying the
// password. Reset and verification tokens are deleted in the same
// transaction; the schema's FK cascade is not relied on since sqlite ships
// with foreign keys off.
func (s *CredentialStore) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := s.repo.Users().GetByID(ctx, userID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return err
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.ResetTokens().DeleteByUserTx(ctx, tx, user.ID); err != nil {
			return err
		}
		if err := s.repo.VerificationTokens().DeleteByUserTx(ctx, tx, user.ID); err != nil {
			return err
		}
		_, err := s.repo.Users().RemoveTx(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete account")
	}

	s.logger.Info("CredentialStore deleted account %s", user.ID)

	return nil
}

func (s *CredentialStore) issue(user *User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID.String(), user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Token: token,
		User:  user.Public(),
	}, nil
}
