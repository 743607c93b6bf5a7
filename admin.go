package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BulkAction names a bulk user operation.
type BulkAction string

const (
	BulkDelete     BulkAction = "delete"
	BulkActivate   BulkAction = "activate"
	BulkDeactivate BulkAction = "deactivate"
	BulkPromote    BulkAction = "promote"
	BulkDemote     BulkAction = "demote"
)

// RequestMeta carries the transport facts an audit entry wants.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// AdminService performs privileged user management. Every mutation records
// an activity event; recording is best-effort and never fails the action.
// Operations that would let an admin lock themselves out reject the actor's
// own account with ErrSelfAction.
type AdminService struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	activity ActivitySink
	logger   Logger
}

type AdminServiceOption func(*AdminService)

func WithAdminLogger(logger Logger) AdminServiceOption {
	return func(s *AdminService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewAdminService(repo RepositoryManager, hasher PasswordHasher, activity ActivitySink, opts ...AdminServiceOption) *AdminService {
	s := &AdminService{
		repo:     repo,
		hasher:   hasher,
		activity: normalizeActivitySink(activity),
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// ListUsers pages through users for the admin panel.
func (s *AdminService) ListUsers(ctx context.Context, filter UserFilter) ([]*User, int, error) {
	return s.repo.Users().ListUsers(ctx, filter)
}

// ListActivity pages through the audit trail.
func (s *AdminService) ListActivity(ctx context.Context, filter ActivityFilter) ([]*ActivityLogEntry, int, error) {
	return s.repo.ActivityLogs().List(ctx, filter)
}

// Promote grants the admin role.
func (s *AdminService) Promote(ctx context.Context, actor ActorRef, targetID uuid.UUID, meta RequestMeta) (*User, error) {
	user, err := s.target(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.Users().SetRole(ctx, RoleAdmin, user.ID); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to promote user")
	}
	user.Role = RoleAdmin

	s.record(ctx, ActivityEvent{
		Action:    ActionPromoteUser,
		Actor:     actor,
		Target:    user.Email,
		Details:   map[string]any{"user_id": user.ID.String(), "new_role": RoleAdmin},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return user, nil
}

// Demote revokes the admin role. Demoting a non-admin is an error, and an
// admin cannot demote themselves.
func (s *AdminService) Demote(ctx context.Context, actor ActorRef, targetID uuid.UUID, meta RequestMeta) (*User, error) {
	user, err := s.target(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if user.Role != RoleAdmin {
		return nil, errors.New("user is not an admin", errors.CategoryBadInput)
	}

	if user.ID == actor.ID {
		return nil, ErrSelfAction
	}

	if _, err := s.repo.Users().SetRole(ctx, RoleUser, user.ID); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to demote user")
	}
	user.Role = RoleUser

	s.record(ctx, ActivityEvent{
		Action:    ActionDemoteUser,
		Actor:     actor,
		Target:    user.Email,
		Details:   map[string]any{"user_id": user.ID.String(), "new_role": RoleUser},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return user, nil
}

// SetUserPassword force-sets a user's password.
func (s *AdminService) SetUserPassword(ctx context.Context, actor ActorRef, targetID uuid.UUID, password string, meta RequestMeta) error {
	user, err := s.target(ctx, targetID)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	if err := s.repo.Users().SetPassword(ctx, user.ID, hash); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to reset password")
	}

	s.record(ctx, ActivityEvent{
		Action:    ActionResetUserPassword,
		Actor:     actor,
		Target:    user.Email,
		Details:   map[string]any{"user_id": user.ID.String()},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return nil
}

// ToggleActive flips the active flag. An admin cannot deactivate themselves.
func (s *AdminService) ToggleActive(ctx context.Context, actor ActorRef, targetID uuid.UUID, meta RequestMeta) (*User, error) {
	user, err := s.target(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if user.ID == actor.ID {
		return nil, ErrSelfAction
	}

	next := !user.IsActive
	if _, err := s.repo.Users().SetActive(ctx, next, user.ID); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to toggle user status")
	}
	user.IsActive = next

	action := ActionDeactivateUser
	if next {
		action = ActionActivateUser
	}

	s.record(ctx, ActivityEvent{
		Action:    action,
		Actor:     actor,
		Target:    user.Email,
		Details:   map[string]any{"user_id": user.ID.String()},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return user, nil
}

// DeleteUser permanently removes another user's account together with its
// outstanding codes.
func (s *AdminService) DeleteUser(ctx context.Context, actor ActorRef, targetID uuid.UUID, meta RequestMeta) error {
	user, err := s.target(ctx, targetID)
	if err != nil {
		return err
	}

	if user.ID == actor.ID {
		return ErrSelfAction
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
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete user")
	}

	s.record(ctx, ActivityEvent{
		Action:    ActionDeleteUser,
		Actor:     actor,
		Target:    user.Email,
		Details:   map[string]any{"user_id": user.ID.String()},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return nil
}

// Bulk applies one action to many users at once. The actor's own ID anywhere
// in the list rejects the whole request.
func (s *AdminService) Bulk(ctx context.Context, actor ActorRef, action BulkAction, ids []uuid.UUID, meta RequestMeta) (int, error) {
	if len(ids) == 0 {
		return 0, errors.New("user ids are required", errors.CategoryBadInput)
	}

	for _, id := range ids {
		if id == actor.ID {
			return 0, ErrSelfAction
		}
	}

	var (
		affected    int
		err         error
		auditAction ActivityAction
	)

	switch action {
	case BulkDelete:
		auditAction = ActionBulkDeleteUsers
		err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for _, id := range ids {
				if err := s.repo.ResetTokens().DeleteByUserTx(ctx, tx, id); err != nil {
					return err
				}
				if err := s.repo.VerificationTokens().DeleteByUserTx(ctx, tx, id); err != nil {
					return err
				}
			}
			affected, err = s.repo.Users().RemoveTx(ctx, tx, ids...)
			return err
		})
	case BulkActivate:
		auditAction = ActionBulkActivateUsers
		affected, err = s.repo.Users().SetActive(ctx, true, ids...)
	case BulkDeactivate:
		auditAction = ActionBulkDeactivateUsers
		affected, err = s.repo.Users().SetActive(ctx, false, ids...)
	case BulkPromote:
		auditAction = ActionBulkPromoteUsers
		affected, err = s.repo.Users().SetRole(ctx, RoleAdmin, ids...)
	case BulkDemote:
		auditAction = ActionBulkDemoteUsers
		affected, err = s.repo.Users().SetRole(ctx, RoleUser, ids...)
	default:
		return 0, errors.New("unknown bulk action", errors.CategoryBadInput).
			WithMetadata(map[string]any{"action": string(action)})
	}

	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "bulk action failed")
	}

	s.record(ctx, ActivityEvent{
		Action:    auditAction,
		Actor:     actor,
		Target:    "multiple",
		Details:   map[string]any{"count": len(ids)},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})

	return affected, nil
}

func (s *AdminService) target(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.repo.Users().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}
	return user, nil
}

func (s *AdminService) record(ctx context.Context, event ActivityEvent) {
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("AdminService failed to record %s activity: %v", event.Action, err)
	}
}
