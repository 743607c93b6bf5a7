package accounts

import (
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Role          UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	Bio           string     `bun:"bio" json:"bio,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	Website       string     `bun:"website" json:"website,omitempty"`
	IsActive      bool       `bun:"is_active" json:"is_active"`
	IsVerified    bool       `bun:"is_email_verified" json:"is_verified"`
	LastLogin     *time.Time `bun:"last_login,nullzero" json:"last_login,omitempty"`
	LoginCount    int        `bun:"login_count" json:"login_count"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NewUser builds a valid User record or fails before anything reaches
// storage. Email is normalized to lowercase; role defaults to RoleUser.
func NewUser(name, email, passwordHash string) (*User, error) {
	email = NormalizeEmail(email)

	switch {
	case strings.TrimSpace(name) == "":
		return nil, errors.New("name is required", errors.CategoryValidation)
	case email == "":
		return nil, errors.New("email is required", errors.CategoryValidation)
	case passwordHash == "":
		return nil, errors.New("password hash is required", errors.CategoryValidation)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "email is not valid")
	}

	return &User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         RoleUser,
		IsActive:     true,
	}, nil
}

// Validate enforces the record invariants prior to persistence.
func (u *User) Validate() error {
	if u.Email == "" || u.Name == "" || u.PasswordHash == "" {
		return errors.New("user record is missing required fields", errors.CategoryValidation)
	}
	if !IsValidRole(u.Role) {
		return errors.New("user has an unknown or invalid role", errors.CategoryValidation).
			WithMetadata(map[string]any{"role": u.Role})
	}
	return nil
}

// PublicUser is the response projection of a User; it never carries the
// password hash.
type PublicUser struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       UserRole  `json:"role"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
}

// Public returns the caller-safe projection.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
	}
}

// NormalizeEmail lowercases and trims an email for case-insensitive matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ResetToken is an ephemeral credential-recovery record. The 6-digit code is
// stored as a bcrypt hash, never plaintext. At most one live row exists per
// user; issuing a new code replaces prior rows in the same transaction.
type ResetToken struct {
	bun.BaseModel `bun:"table:reset_tokens,alias:rst"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	CodeHash      string     `bun:"code_hash,notnull" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *ResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// VerificationToken has the same shape as ResetToken but its own table and
// lifecycle; it backs email verification.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vrf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	CodeHash      string     `bun:"code_hash,notnull" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ActivityAction tags an audit entry. The set is closed; Validate rejects
// anything else before it reaches storage.
type ActivityAction string

const (
	ActionPromoteUser         ActivityAction = "PROMOTE_USER"
	ActionDemoteUser          ActivityAction = "DEMOTE_USER"
	ActionResetUserPassword   ActivityAction = "RESET_USER_PASSWORD"
	ActionActivateUser        ActivityAction = "ACTIVATE_USER"
	ActionDeactivateUser      ActivityAction = "DEACTIVATE_USER"
	ActionDeleteUser          ActivityAction = "DELETE_USER"
	ActionBulkDeleteUsers     ActivityAction = "BULK_DELETE_USERS"
	ActionBulkActivateUsers   ActivityAction = "BULK_ACTIVATE_USERS"
	ActionBulkDeactivateUsers ActivityAction = "BULK_DEACTIVATE_USERS"
	ActionBulkPromoteUsers    ActivityAction = "BULK_PROMOTE_USERS"
	ActionBulkDemoteUsers     ActivityAction = "BULK_DEMOTE_USERS"
)

// IsValid checks membership in the closed action set.
func (a ActivityAction) IsValid() bool {
	switch a {
	case ActionPromoteUser, ActionDemoteUser, ActionResetUserPassword,
		ActionActivateUser, ActionDeactivateUser, ActionDeleteUser,
		ActionBulkDeleteUsers, ActionBulkActivateUsers, ActionBulkDeactivateUsers,
		ActionBulkPromoteUsers, ActionBulkDemoteUsers:
		return true
	default:
		return false
	}
}

// ActivityLogEntry is an append-only audit record of a privileged action.
// Entries are immutable once written.
type ActivityLogEntry struct {
	bun.BaseModel `bun:"table:activity_logs,alias:act"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ActorID       uuid.UUID      `bun:"actor_id,notnull,type:uuid" json:"actor_id,omitempty"`
	Action        ActivityAction `bun:"action,notnull" json:"action,omitempty"`
	Target        string         `bun:"target" json:"target,omitempty"`
	Details       map[string]any `bun:"details,type:jsonb" json:"details,omitempty"`
	IPAddress     string         `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent     string         `bun:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Validate enforces the closed action enumeration and the actor reference.
func (e *ActivityLogEntry) Validate() error {
	if e.ActorID == uuid.Nil {
		return errors.New("activity entry requires an actor", errors.CategoryValidation)
	}
	if !e.Action.IsValid() {
		return errors.New("activity entry has an unknown action", errors.CategoryValidation).
			WithMetadata(map[string]any{"action": string(e.Action)})
	}
	return nil
}
