package accounts

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// AdminUserKey is the fiber.Locals slot RequireAdmin stores the live admin
// record under.
const AdminUserKey = "accounts:admin"

// Protected returns middleware that resolves the request principal from the
// Authorization header and stores it under cfg.GetContextKey(). Requests
// without a valid session token never reach the handler.
func Protected(guard *Guard, cfg Config, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization), cfg.GetAuthScheme())
		if token == "" {
			return WriteError(c, logger, ErrUnauthorized)
		}

		principal, err := guard.ResolvePrincipal(token)
		if err != nil {
			return WriteError(c, logger, err)
		}

		c.Locals(cfg.GetContextKey(), principal)
		return c.Next()
	}
}

// RequireAdmin returns middleware that re-checks the live user record and
// admits only active admins. It must run after Protected.
func RequireAdmin(guard *Guard, cfg Config, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx) error {
		principal, err := PrincipalFromCtx(c, cfg.GetContextKey())
		if err != nil {
			return WriteError(c, logger, err)
		}

		admin, err := guard.RequireAdmin(c.Context(), principal)
		if err != nil {
			return WriteError(c, logger, err)
		}

		c.Locals(AdminUserKey, admin)
		return c.Next()
	}
}

// PrincipalFromCtx pulls the resolved principal out of the request context.
func PrincipalFromCtx(c *fiber.Ctx, key string) (*Principal, error) {
	principal, ok := c.Locals(key).(*Principal)
	if !ok || principal == nil {
		return nil, ErrUnauthorized
	}
	return principal, nil
}

// AdminFromCtx pulls the live admin record RequireAdmin stored.
func AdminFromCtx(c *fiber.Ctx) (*User, error) {
	admin, ok := c.Locals(AdminUserKey).(*User)
	if !ok || admin == nil {
		return nil, ErrForbidden
	}
	return admin, nil
}

// WriteError renders an error as the JSON error envelope with the right
// status code.
func WriteError(c *fiber.Ctx, logger Logger, err error) error {
	richErr := asRichError(err)

	if richErr.Category == errors.CategoryInternal {
		logger.Error("request failed: %s %s", richErr.Message, print.MaybePrettyJSON(richErr.Metadata))
	} else {
		logger.Debug("request rejected: %s (%s)", richErr.Message, richErr.TextCode)
	}

	body := fiber.Map{"message": richErr.Message}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.Status(HTTPStatus(richErr)).JSON(body)
}

// HTTPStatus maps a rich error to an HTTP status code. An explicit Code wins;
// otherwise the category decides.
func HTTPStatus(err error) int {
	richErr := asRichError(err)

	if richErr.Code >= http.StatusBadRequest {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryBadInput, errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func asRichError(err error) *errors.Error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "an unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}
	return richErr
}

func bearerToken(header, scheme string) string {
	if header == "" {
		return ""
	}

	if scheme == "" {
		return header
	}

	prefix := scheme + " "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
