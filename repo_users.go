package accounts

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SetUserPasswordSQL swaps the password hash in one statement so the check
// and the write cannot interleave with another writer.
var SetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."id" = ?
RETURNING *;`

// TrackLoginSQL records a successful login without round-tripping the record.
var TrackLoginSQL = `UPDATE "users" AS "usr"
SET
	"last_login" = CURRENT_TIMESTAMP,
	"login_count" = "login_count" + 1
WHERE
	"usr"."id" = ?;`

// Users exposes the persistence operations the accounts components need for
// user records.
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	TrackLogin(ctx context.Context, user *User) error
	TrackLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	SetActive(ctx context.Context, active bool, ids ...uuid.UUID) (int, error)
	SetActiveTx(ctx context.Context, tx bun.IDB, active bool, ids ...uuid.UUID) (int, error)
	SetRole(ctx context.Context, role UserRole, ids ...uuid.UUID) (int, error)
	SetRoleTx(ctx context.Context, tx bun.IDB, role UserRole, ids ...uuid.UUID) (int, error)
	SetVerified(ctx context.Context, id uuid.UUID) error
	SetVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	Remove(ctx context.Context, ids ...uuid.UUID) (int, error)
	RemoveTx(ctx context.Context, tx bun.IDB, ids ...uuid.UUID) (int, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*User, error)

	ListUsers(ctx context.Context, filter UserFilter) ([]*User, int, error)
}

// UserFilter narrows and pages admin user listings.
type UserFilter struct {
	Search string
	Role   UserRole
	Active *bool
	Limit  int
	Offset int
}

type usersRepo struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*usersRepo)(nil)
	_ repository.Repository[*User] = (*usersRepo)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &usersRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *usersRepo) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *usersRepo) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *usersRepo) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *usersRepo) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *usersRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *usersRepo) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *usersRepo) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.SetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *usersRepo) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, SetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *usersRepo) TrackLogin(ctx context.Context, user *User) error {
	return a.TrackLoginTx(ctx, a.db, user)
}

func (a *usersRepo) TrackLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	_, err := tx.NewRaw(TrackLoginSQL, user.ID).Exec(ctx)
	return err
}

func (a *usersRepo) SetActive(ctx context.Context, active bool, ids ...uuid.UUID) (int, error) {
	return a.SetActiveTx(ctx, a.db, active, ids...)
}

func (a *usersRepo) SetActiveTx(ctx context.Context, tx bun.IDB, active bool, ids ...uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return rowsAffected(res), nil
}

func (a *usersRepo) SetRole(ctx context.Context, role UserRole, ids ...uuid.UUID) (int, error) {
	return a.SetRoleTx(ctx, a.db, role, ids...)
}

func (a *usersRepo) SetRoleTx(ctx context.Context, tx bun.IDB, role UserRole, ids ...uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("user_role = ?", role).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return rowsAffected(res), nil
}

func (a *usersRepo) SetVerified(ctx context.Context, id uuid.UUID) error {
	return a.SetVerifiedTx(ctx, a.db, id)
}

func (a *usersRepo) SetVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("is_email_verified = ?", true).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (a *usersRepo) Remove(ctx context.Context, ids ...uuid.UUID) (int, error) {
	return a.RemoveTx(ctx, a.db, ids...)
}

func (a *usersRepo) RemoveTx(ctx context.Context, tx bun.IDB, ids ...uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return rowsAffected(res), nil
}

// ProfilePatch carries the self-service profile fields. Nil fields are left
// untouched.
type ProfilePatch struct {
	Name    *string
	Bio     *string
	Phone   *string
	Website *string
}

func (a *usersRepo) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*User, error) {
	q := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", id)

	if patch.Name != nil {
		q = q.Set("name = ?", strings.TrimSpace(*patch.Name))
	}
	if patch.Bio != nil {
		q = q.Set("bio = ?", *patch.Bio)
	}
	if patch.Phone != nil {
		q = q.Set("phone_number = ?", *patch.Phone)
	}
	if patch.Website != nil {
		q = q.Set("website = ?", *patch.Website)
	}

	if _, err := q.Exec(ctx); err != nil {
		return nil, err
	}

	return a.Repository.GetByID(ctx, id.String())
}

func (a *usersRepo) ListUsers(ctx context.Context, filter UserFilter) ([]*User, int, error) {
	var records []*User

	q := a.db.NewSelect().Model(&records)

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(?TableAlias.name) LIKE ? OR LOWER(?TableAlias.email) LIKE ?)", pattern, pattern)
	}

	if filter.Role != "" {
		q = q.Where("?TableAlias.user_role = ?", filter.Role)
	}

	if filter.Active != nil {
		q = q.Where("?TableAlias.is_active = ?", *filter.Active)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	total, err := q.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// the backing database. Matched textually since the sqlite and postgres
// drivers surface different error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
