package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetTokens persists password recovery codes. The replace-on-issue shape
// keeps at most one live row per user.
type ResetTokens interface {
	repository.Repository[*ResetToken]

	ReplaceTx(ctx context.Context, tx bun.IDB, record *ResetToken) (*ResetToken, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*ResetToken, error)
	GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*ResetToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
	PurgeExpired(ctx context.Context) (int, error)
}

type resetTokensRepo struct {
	repository.Repository[*ResetToken]
	db *bun.DB
}

var _ ResetTokens = (*resetTokensRepo)(nil)

func NewResetTokensRepository(db *bun.DB) ResetTokens {
	repo := repository.NewRepository[*ResetToken](db, repository.ModelHandlers[*ResetToken]{
		NewRecord: func() *ResetToken { return &ResetToken{} },
		GetID: func(t *ResetToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *ResetToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &resetTokensRepo{
		Repository: repo,
		db:         db,
	}
}

// ReplaceTx removes any prior rows for the user and inserts the new one in
// the caller's transaction.
func (r *resetTokensRepo) ReplaceTx(ctx context.Context, tx bun.IDB, record *ResetToken) (*ResetToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if err := r.DeleteByUserTx(ctx, tx, record.UserID); err != nil {
		return nil, err
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *resetTokensRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*ResetToken, error) {
	return r.GetByUserTx(ctx, r.db, userID)
}

func (r *resetTokensRepo) GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*ResetToken, error) {
	record := &ResetToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *resetTokensRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.DeleteByUserTx(ctx, r.db, userID)
}

func (r *resetTokensRepo) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*ResetToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *resetTokensRepo) PurgeExpired(ctx context.Context) (int, error) {
	res, err := r.db.NewDelete().
		Model((*ResetToken)(nil)).
		Where("expires_at <= CURRENT_TIMESTAMP").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

// VerificationTokens persists email verification codes with the same
// single-live-row contract as ResetTokens.
type VerificationTokens interface {
	repository.Repository[*VerificationToken]

	ReplaceTx(ctx context.Context, tx bun.IDB, record *VerificationToken) (*VerificationToken, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*VerificationToken, error)
	GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*VerificationToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
	PurgeExpired(ctx context.Context) (int, error)
}

type verificationTokensRepo struct {
	repository.Repository[*VerificationToken]
	db *bun.DB
}

var _ VerificationTokens = (*verificationTokensRepo)(nil)

func NewVerificationTokensRepository(db *bun.DB) VerificationTokens {
	repo := repository.NewRepository[*VerificationToken](db, repository.ModelHandlers[*VerificationToken]{
		NewRecord: func() *VerificationToken { return &VerificationToken{} },
		GetID: func(t *VerificationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *VerificationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &verificationTokensRepo{
		Repository: repo,
		db:         db,
	}
}

func (r *verificationTokensRepo) ReplaceTx(ctx context.Context, tx bun.IDB, record *VerificationToken) (*VerificationToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if err := r.DeleteByUserTx(ctx, tx, record.UserID); err != nil {
		return nil, err
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *verificationTokensRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*VerificationToken, error) {
	return r.GetByUserTx(ctx, r.db, userID)
}

func (r *verificationTokensRepo) GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*VerificationToken, error) {
	record := &VerificationToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"user_id": userID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *verificationTokensRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return r.DeleteByUserTx(ctx, r.db, userID)
}

func (r *verificationTokensRepo) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *verificationTokensRepo) PurgeExpired(ctx context.Context) (int, error) {
	res, err := r.db.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("expires_at <= CURRENT_TIMESTAMP").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}
