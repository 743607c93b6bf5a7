package accounts_test

import (
	"context"
	"database/sql"
	"strings"

	accounts "github.com/mkcode/go-accounts"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// plainHasher is a PasswordHasher stand-in that skips bcrypt so unit tests
// stay fast. Hashes are "h:" + password.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", accounts.ErrNoEmptyString
	}
	return "h:" + password, nil
}

func (plainHasher) Compare(hash, password string) error {
	if hash != "h:"+password {
		return accounts.ErrInvalidCredentials
	}
	return nil
}

// memUsers is an in-memory Users fake. The embedded nil repository panics if
// a test reaches an operation the fake does not stub, which is what we want.
type memUsers struct {
	repository.Repository[*accounts.User]
	byID        map[uuid.UUID]*accounts.User
	loginTracks int
	registerErr error
}

func newMemUsers(users ...*accounts.User) *memUsers {
	m := &memUsers{
		byID: map[uuid.UUID]*accounts.User{},
	}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) notFound(meta map[string]any) error {
	return repository.NewRecordNotFound().WithMetadata(meta)
}

func (m *memUsers) Register(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return m.RegisterTx(ctx, nil, user)
}

func (m *memUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *accounts.User) (*accounts.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) Create(ctx context.Context, record *accounts.User, criteria ...repository.InsertCriteria) (*accounts.User, error) {
	return m.RegisterTx(ctx, nil, record)
}

func (m *memUsers) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.User, criteria ...repository.InsertCriteria) (*accounts.User, error) {
	return m.RegisterTx(ctx, tx, record)
}

func (m *memUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*accounts.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, m.notFound(map[string]any{"id": id})
	}
	user, ok := m.byID[uid]
	if !ok {
		return nil, m.notFound(map[string]any{"id": id})
	}
	return user, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return m.GetByEmailTx(ctx, nil, email)
}

func (m *memUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*accounts.User, error) {
	email = accounts.NormalizeEmail(email)
	for _, user := range m.byID {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return nil, m.notFound(map[string]any{"email": email})
}

func (m *memUsers) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return m.SetPasswordTx(ctx, nil, id, passwordHash)
}

func (m *memUsers) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	user, ok := m.byID[id]
	if !ok {
		return m.notFound(map[string]any{"id": id.String()})
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *memUsers) TrackLogin(ctx context.Context, user *accounts.User) error {
	return m.TrackLoginTx(ctx, nil, user)
}

func (m *memUsers) TrackLoginTx(ctx context.Context, tx bun.IDB, user *accounts.User) error {
	m.loginTracks++
	user.LoginCount++
	return nil
}

func (m *memUsers) SetActive(ctx context.Context, active bool, ids ...uuid.UUID) (int, error) {
	return m.SetActiveTx(ctx, nil, active, ids...)
}

func (m *memUsers) SetActiveTx(ctx context.Context, tx bun.IDB, active bool, ids ...uuid.UUID) (int, error) {
	n := 0
	for _, id := range ids {
		if user, ok := m.byID[id]; ok {
			user.IsActive = active
			n++
		}
	}
	return n, nil
}

func (m *memUsers) SetRole(ctx context.Context, role accounts.UserRole, ids ...uuid.UUID) (int, error) {
	return m.SetRoleTx(ctx, nil, role, ids...)
}

func (m *memUsers) SetRoleTx(ctx context.Context, tx bun.IDB, role accounts.UserRole, ids ...uuid.UUID) (int, error) {
	n := 0
	for _, id := range ids {
		if user, ok := m.byID[id]; ok {
			user.Role = role
			n++
		}
	}
	return n, nil
}

func (m *memUsers) SetVerified(ctx context.Context, id uuid.UUID) error {
	return m.SetVerifiedTx(ctx, nil, id)
}

func (m *memUsers) SetVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	user, ok := m.byID[id]
	if !ok {
		return m.notFound(map[string]any{"id": id.String()})
	}
	user.IsVerified = true
	return nil
}

func (m *memUsers) Remove(ctx context.Context, ids ...uuid.UUID) (int, error) {
	return m.RemoveTx(ctx, nil, ids...)
}

func (m *memUsers) RemoveTx(ctx context.Context, tx bun.IDB, ids ...uuid.UUID) (int, error) {
	n := 0
	for _, id := range ids {
		if _, ok := m.byID[id]; ok {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func (m *memUsers) UpdateProfile(ctx context.Context, id uuid.UUID, patch accounts.ProfilePatch) (*accounts.User, error) {
	user, ok := m.byID[id]
	if !ok {
		return nil, m.notFound(map[string]any{"id": id.String()})
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Bio != nil {
		user.Bio = *patch.Bio
	}
	if patch.Phone != nil {
		user.Phone = *patch.Phone
	}
	if patch.Website != nil {
		user.Website = *patch.Website
	}
	return user, nil
}

func (m *memUsers) ListUsers(ctx context.Context, filter accounts.UserFilter) ([]*accounts.User, int, error) {
	out := []*accounts.User{}
	for _, user := range m.byID {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if filter.Active != nil && user.IsActive != *filter.Active {
			continue
		}
		if filter.Search != "" &&
			!strings.Contains(strings.ToLower(user.Name), strings.ToLower(filter.Search)) &&
			!strings.Contains(strings.ToLower(user.Email), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, user)
	}
	return out, len(out), nil
}

// memResetTokens fakes the ResetTokens repository with one row per user.
type memResetTokens struct {
	repository.Repository[*accounts.ResetToken]
	byUser map[uuid.UUID]*accounts.ResetToken
}

func newMemResetTokens() *memResetTokens {
	return &memResetTokens{byUser: map[uuid.UUID]*accounts.ResetToken{}}
}

func (m *memResetTokens) ReplaceTx(ctx context.Context, tx bun.IDB, record *accounts.ResetToken) (*accounts.ResetToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	m.byUser[record.UserID] = record
	return record, nil
}

func (m *memResetTokens) GetByUser(ctx context.Context, userID uuid.UUID) (*accounts.ResetToken, error) {
	return m.GetByUserTx(ctx, nil, userID)
}

func (m *memResetTokens) GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*accounts.ResetToken, error) {
	token, ok := m.byUser[userID]
	if !ok {
		return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{"user_id": userID.String()})
	}
	return token, nil
}

func (m *memResetTokens) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return m.DeleteByUserTx(ctx, nil, userID)
}

func (m *memResetTokens) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	delete(m.byUser, userID)
	return nil
}

func (m *memResetTokens) PurgeExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// memVerificationTokens mirrors memResetTokens for the verification table.
type memVerificationTokens struct {
	repository.Repository[*accounts.VerificationToken]
	byUser map[uuid.UUID]*accounts.VerificationToken
}

func newMemVerificationTokens() *memVerificationTokens {
	return &memVerificationTokens{byUser: map[uuid.UUID]*accounts.VerificationToken{}}
}

func (m *memVerificationTokens) ReplaceTx(ctx context.Context, tx bun.IDB, record *accounts.VerificationToken) (*accounts.VerificationToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	m.byUser[record.UserID] = record
	return record, nil
}

func (m *memVerificationTokens) GetByUser(ctx context.Context, userID uuid.UUID) (*accounts.VerificationToken, error) {
	return m.GetByUserTx(ctx, nil, userID)
}

func (m *memVerificationTokens) GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*accounts.VerificationToken, error) {
	token, ok := m.byUser[userID]
	if !ok {
		return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{"user_id": userID.String()})
	}
	return token, nil
}

func (m *memVerificationTokens) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	return m.DeleteByUserTx(ctx, nil, userID)
}

func (m *memVerificationTokens) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	delete(m.byUser, userID)
	return nil
}

func (m *memVerificationTokens) PurgeExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// memActivityLogs records appended entries in order.
type memActivityLogs struct {
	entries []*accounts.ActivityLogEntry
}

func (m *memActivityLogs) Append(ctx context.Context, entry *accounts.ActivityLogEntry) error {
	return m.AppendTx(ctx, nil, entry)
}

func (m *memActivityLogs) AppendTx(ctx context.Context, tx bun.IDB, entry *accounts.ActivityLogEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memActivityLogs) List(ctx context.Context, filter accounts.ActivityFilter) ([]*accounts.ActivityLogEntry, int, error) {
	out := []*accounts.ActivityLogEntry{}
	for _, e := range m.entries {
		if filter.ActorID != uuid.Nil && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

// memRepoManager bundles the fakes behind the RepositoryManager interface.
// RunInTx just invokes the function; the fakes ignore the tx handle.
type memRepoManager struct {
	users              *memUsers
	resetTokens        *memResetTokens
	verificationTokens *memVerificationTokens
	activityLogs       *memActivityLogs
}

func newMemRepoManager(users ...*accounts.User) *memRepoManager {
	return &memRepoManager{
		users:              newMemUsers(users...),
		resetTokens:        newMemResetTokens(),
		verificationTokens: newMemVerificationTokens(),
		activityLogs:       &memActivityLogs{},
	}
}

func (m *memRepoManager) Validate() error { return nil }
func (m *memRepoManager) MustValidate()   {}

func (m *memRepoManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *memRepoManager) Users() accounts.Users { return m.users }

func (m *memRepoManager) ResetTokens() accounts.ResetTokens { return m.resetTokens }

func (m *memRepoManager) VerificationTokens() accounts.VerificationTokens {
	return m.verificationTokens
}

func (m *memRepoManager) ActivityLogs() accounts.ActivityLogs { return m.activityLogs }

// recordingMailer captures deliveries so tests can assert on them. Sends go
// through a channel because managers deliver from a goroutine.
type recordingMailer struct {
	sent chan sentMail
}

type sentMail struct {
	To       string
	Template string
	Params   map[string]any
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: make(chan sentMail, 8)}
}

func (m *recordingMailer) Send(ctx context.Context, to, template string, params map[string]any) error {
	m.sent <- sentMail{To: to, Template: template, Params: params}
	return nil
}

// failingSink always errors, to prove audited actions do not roll back.
type failingSink struct{}

func (failingSink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	return accounts.ErrUnauthorized
}
