package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Principal is the identity a request acts as, resolved from a session
// token. It reflects the claims at issue time; anything privileged must go
// through RequireAdmin for a live check.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   UserRole
}

// IsAdmin reports the role carried in the token.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ActorRef converts the principal into an audit actor reference.
func (p Principal) ActorRef() ActorRef {
	return ActorRef{
		ID:    p.UserID,
		Email: p.Email,
		Role:  p.Role,
	}
}

// GuardUsers is the slice of the users repository the guard needs.
type GuardUsers interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error)
}

// Guard resolves principals from session tokens and gates admin access.
type Guard struct {
	tokens TokenService
	users  GuardUsers
	logger Logger
}

func NewGuard(tokens TokenService, users GuardUsers, logger Logger) *Guard {
	if logger == nil {
		logger = defLogger{}
	}
	return &Guard{
		tokens: tokens,
		users:  users,
		logger: logger,
	}
}

// ResolvePrincipal validates a session token and extracts the principal.
func (g *Guard) ResolvePrincipal(tokenString string) (*Principal, error) {
	claims, err := g.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrTokenMalformed
	}

	return &Principal{
		UserID: id,
		Email:  claims.Email,
		Role:   claims.Role(),
	}, nil
}

// RequireAdmin re-fetches the principal's live record and admits only an
// active admin. The token role is not trusted here: a demotion or
// deactivation applies to the very next request even though the token still
// carries the old role.
func (g *Guard) RequireAdmin(ctx context.Context, p *Principal) (*User, error) {
	if p == nil {
		return nil, ErrUnauthorized
	}

	user, err := g.users.GetByID(ctx, p.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up principal")
	}

	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	if user.Role != RoleAdmin {
		g.logger.Warn("Guard rejected non-admin %s on an admin route", user.ID)
		return nil, ErrForbidden
	}

	return user, nil
}
