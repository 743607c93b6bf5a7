package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	ResetTokens() ResetTokens
	VerificationTokens() VerificationTokens
	ActivityLogs() ActivityLogs
}

type mngr struct {
	db                 *bun.DB
	users              Users
	resetTokens        ResetTokens
	verificationTokens VerificationTokens
	activityLogs       ActivityLogs
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                 db,
		users:              NewUsersRepository(db),
		resetTokens:        NewResetTokensRepository(db),
		verificationTokens: NewVerificationTokensRepository(db),
		activityLogs:       NewActivityLogsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.resetTokens == nil {
		return errors.New("repository resetTokens should be initialized")
	}

	if m.verificationTokens == nil {
		return errors.New("repository verificationTokens should be initialized")
	}

	if m.activityLogs == nil {
		return errors.New("repository activityLogs should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) ResetTokens() ResetTokens {
	return m.resetTokens
}

func (m mngr) VerificationTokens() VerificationTokens {
	return m.verificationTokens
}

func (m mngr) ActivityLogs() ActivityLogs {
	return m.activityLogs
}

func rowsAffected(res sql.Result) int {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
