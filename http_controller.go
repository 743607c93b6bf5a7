package accounts

import (
	goerrors "errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// AccountsController exposes the account lifecycle over HTTP as a JSON API.
type AccountsController struct {
	Logger       Logger
	Config       Config
	Credentials  *CredentialStore
	Reset        *ResetCodeManager
	Verification *VerificationManager
	Admin        *AdminService
	Guard        *Guard
	Users        Users
}

type AccountsControllerOption func(*AccountsController)

func WithControllerLogger(logger Logger) AccountsControllerOption {
	return func(c *AccountsController) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func NewAccountsController(cfg Config, credentials *CredentialStore, reset *ResetCodeManager, verification *VerificationManager, admin *AdminService, guard *Guard, users Users, opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:       defLogger{},
		Config:       cfg,
		Credentials:  credentials,
		Reset:        reset,
		Verification: verification,
		Admin:        admin,
		Guard:        guard,
		Users:        users,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// RouteMiddleware lets the caller attach per-tier middleware, typically the
// rate limiters.
type RouteMiddleware struct {
	Auth  []fiber.Handler
	Reset []fiber.Handler
}

// RegisterRoutes mounts every route on the given router. Protected and admin
// routes get their guards here; tier middleware comes from the caller.
func (ctrl *AccountsController) RegisterRoutes(app fiber.Router, mw RouteMiddleware) {
	authTier := mw.Auth
	resetTier := mw.Reset

	app.Post("/register", withTier(authTier, ctrl.RegisterPost)...)
	app.Post("/login", withTier(authTier, ctrl.LoginPost)...)

	app.Post("/request-reset", withTier(resetTier, ctrl.RequestResetPost)...)
	app.Post("/verify-reset-code", ctrl.VerifyResetCodePost)
	app.Post("/reset-password", ctrl.ResetPasswordPost)

	app.Post("/verify-email", ctrl.VerifyEmailPost)
	app.Post("/resend-verification", withTier(resetTier, ctrl.ResendVerificationPost)...)

	protected := Protected(ctrl.Guard, ctrl.Config, ctrl.Logger)

	app.Get("/profile", protected, ctrl.ProfileGet)
	app.Put("/profile", protected, ctrl.ProfilePut)
	app.Put("/profile/password", protected, ctrl.ChangePasswordPut)
	app.Delete("/profile", protected, ctrl.AccountDelete)

	admin := app.Group("/admin", protected, RequireAdmin(ctrl.Guard, ctrl.Config, ctrl.Logger))
	admin.Get("/users", ctrl.AdminUsersGet)
	admin.Post("/promote", ctrl.AdminPromotePost)
	admin.Post("/demote", ctrl.AdminDemotePost)
	admin.Post("/reset-password", ctrl.AdminResetPasswordPost)
	admin.Post("/toggle-status", ctrl.AdminToggleStatusPost)
	admin.Delete("/user/:id", ctrl.AdminUserDelete)
	admin.Post("/bulk-action", ctrl.AdminBulkActionPost)
	admin.Get("/activity-logs", ctrl.AdminActivityLogsGet)
}

func withTier(tier []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(tier)+1)
	handlers = append(handlers, tier...)
	handlers = append(handlers, handler)
	return handlers
}

type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(2, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (ctrl *AccountsController) RegisterPost(c *fiber.Ctx) error {
	payload := RegisterPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	result, err := ctrl.Credentials.Register(c.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	if user, err := ctrl.Users.GetByEmail(c.Context(), payload.Email); err == nil {
		if err := ctrl.Verification.Request(c.Context(), user); err != nil {
			ctrl.Logger.Warn("failed to issue verification code for %s: %v", user.ID, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (ctrl *AccountsController) LoginPost(c *fiber.Ctx) error {
	payload := LoginPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	result, err := ctrl.Credentials.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(result)
}

type RequestResetPayload struct {
	Email string `json:"email"`
}

func (r RequestResetPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// RequestResetPost always answers the same way so the endpoint cannot be
// used to probe which emails have accounts.
func (ctrl *AccountsController) RequestResetPost(c *fiber.Ctx) error {
	payload := RequestResetPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	if err := ctrl.Reset.Request(c.Context(), payload.Email); err != nil {
		ctrl.Logger.Error("reset request failed: %v", err)
	}

	return c.JSON(fiber.Map{
		"message": "If an account exists for that email, a reset code has been sent",
	})
}

type VerifyResetCodePayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r VerifyResetCodePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

func (ctrl *AccountsController) VerifyResetCodePost(c *fiber.Ctx) error {
	payload := VerifyResetCodePayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	if err := ctrl.Reset.Verify(c.Context(), payload.Email, payload.Code); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{"message": "Code verified"})
}

type ResetPasswordPayload struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
	)
}

func (ctrl *AccountsController) ResetPasswordPost(c *fiber.Ctx) error {
	payload := ResetPasswordPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	if err := ctrl.Reset.Finalize(c.Context(), payload.Email, payload.Code, payload.NewPassword); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{"message": "Password has been reset"})
}

type VerifyEmailPayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

func (ctrl *AccountsController) VerifyEmailPost(c *fiber.Ctx) error {
	payload := VerifyEmailPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	if err := ctrl.Verification.Confirm(c.Context(), payload.Email, payload.Code); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{"message": "Email verified"})
}

// ResendVerificationPost answers generically for the same reason as
// RequestResetPost.
func (ctrl *AccountsController) ResendVerificationPost(c *fiber.Ctx) error {
	payload := RequestResetPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	if user, err := ctrl.Users.GetByEmail(c.Context(), payload.Email); err == nil {
		if err := ctrl.Verification.Request(c.Context(), user); err != nil {
			ctrl.Logger.Error("verification request failed: %v", err)
		}
	}

	return c.JSON(fiber.Map{
		"message": "If an account exists for that email, a verification code has been sent",
	})
}

func (ctrl *AccountsController) ProfileGet(c *fiber.Ctx) error {
	principal, err := PrincipalFromCtx(c, ctrl.Config.GetContextKey())
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	user, err := ctrl.Users.GetByID(c.Context(), principal.UserID.String())
	if err != nil {
		return WriteError(c, ctrl.Logger, ErrUserNotFound)
	}

	return c.JSON(profileView(user))
}

type ProfilePayload struct {
	Name    *string `json:"name"`
	Bio     *string `json:"bio"`
	Phone   *string `json:"phone_number"`
	Website *string `json:"website"`
}

func (r ProfilePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(2, 100)),
		validation.Field(&r.Bio, validation.Length(0, 500)),
		validation.Field(&r.Phone, validation.By(validatePhone)),
		validation.Field(&r.Website, is.URL),
	)
}

var errInvalidPhone = goerrors.New("must be a valid phone number")

func validatePhone(value any) error {
	raw, _ := value.(*string)
	if raw == nil || *raw == "" {
		return nil
	}

	num, err := phonenumbers.Parse(*raw, "US")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errInvalidPhone
	}

	return nil
}

func (ctrl *AccountsController) ProfilePut(c *fiber.Ctx) error {
	principal, err := PrincipalFromCtx(c, ctrl.Config.GetContextKey())
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	payload := ProfilePayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	user, err := ctrl.Users.UpdateProfile(c.Context(), principal.UserID, ProfilePatch{
		Name:    payload.Name,
		Bio:     payload.Bio,
		Phone:   payload.Phone,
		Website: payload.Website,
	})
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(profileView(user))
}

type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
	)
}

func (ctrl *AccountsController) ChangePasswordPut(c *fiber.Ctx) error {
	principal, err := PrincipalFromCtx(c, ctrl.Config.GetContextKey())
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	payload := ChangePasswordPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	if err := ctrl.Credentials.ChangePassword(c.Context(), principal.UserID, payload.CurrentPassword, payload.NewPassword); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{"message": "Password changed"})
}

type DeleteAccountPayload struct {
	Password string `json:"password"`
}

func (r DeleteAccountPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
	)
}

func (ctrl *AccountsController) AccountDelete(c *fiber.Ctx) error {
	principal, err := PrincipalFromCtx(c, ctrl.Config.GetContextKey())
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	payload := DeleteAccountPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	if err := ctrl.Credentials.DeleteAccount(c.Context(), principal.UserID, payload.Password); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{"message": "Account deleted"})
}

func (ctrl *AccountsController) AdminUsersGet(c *fiber.Ctx) error {
	filter := UserFilter{
		Search: c.Query("search"),
		Role:   c.Query("role"),
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	}

	switch c.Query("active") {
	case "true":
		active := true
		filter.Active = &active
	case "false":
		active := false
		filter.Active = &active
	}

	users, total, err := ctrl.Admin.ListUsers(c.Context(), filter)
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	views := make([]fiber.Map, 0, len(users))
	for _, user := range users {
		views = append(views, profileView(user))
	}

	return c.JSON(fiber.Map{
		"users": views,
		"total": total,
	})
}

type AdminTargetPayload struct {
	UserID string `json:"user_id"`
}

func (r AdminTargetPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUIDv4),
	)
}

func (ctrl *AccountsController) AdminPromotePost(c *fiber.Ctx) error {
	return ctrl.adminTargetAction(c, func(actor ActorRef, targetID uuid.UUID, meta RequestMeta) (any, error) {
		user, err := ctrl.Admin.Promote(c.Context(), actor, targetID, meta)
		if err != nil {
			return nil, err
		}
		return fiber.Map{"message": "User promoted to admin", "user": user.Public()}, nil
	})
}

func (ctrl *AccountsController) AdminDemotePost(c *fiber.Ctx) error {
	return ctrl.adminTargetAction(c, func(actor ActorRef, targetID uuid.UUID, meta RequestMeta) (any, error) {
		user, err := ctrl.Admin.Demote(c.Context(), actor, targetID, meta)
		if err != nil {
			return nil, err
		}
		return fiber.Map{"message": "User demoted to regular user", "user": user.Public()}, nil
	})
}

func (ctrl *AccountsController) AdminToggleStatusPost(c *fiber.Ctx) error {
	return ctrl.adminTargetAction(c, func(actor ActorRef, targetID uuid.UUID, meta RequestMeta) (any, error) {
		user, err := ctrl.Admin.ToggleActive(c.Context(), actor, targetID, meta)
		if err != nil {
			return nil, err
		}

		message := "User deactivated"
		if user.IsActive {
			message = "User activated"
		}
		return fiber.Map{"message": message, "user": user.Public()}, nil
	})
}

type AdminResetPasswordPayload struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (r AdminResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUIDv4),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (ctrl *AccountsController) AdminResetPasswordPost(c *fiber.Ctx) error {
	admin, err := AdminFromCtx(c)
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	payload := AdminResetPasswordPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	targetID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return WriteError(c, ctrl.Logger, errors.New("user id is not valid", errors.CategoryBadInput))
	}

	if err := ctrl.Admin.SetUserPassword(c.Context(), actorRef(admin), targetID, payload.Password, requestMeta(c)); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{"message": "Password reset successfully"})
}

func (ctrl *AccountsController) AdminUserDelete(c *fiber.Ctx) error {
	admin, err := AdminFromCtx(c)
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	targetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return WriteError(c, ctrl.Logger, errors.New("user id is not valid", errors.CategoryBadInput))
	}

	if err := ctrl.Admin.DeleteUser(c.Context(), actorRef(admin), targetID, requestMeta(c)); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{"message": "User deleted successfully"})
}

type BulkActionPayload struct {
	Action  string   `json:"action"`
	UserIDs []string `json:"user_ids"`
}

func (r BulkActionPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Action,
			validation.Required,
			validation.In(
				string(BulkDelete),
				string(BulkActivate),
				string(BulkDeactivate),
				string(BulkPromote),
				string(BulkDemote),
			),
		),
		validation.Field(&r.UserIDs, validation.Required, validation.Length(1, 100)),
	)
}

func (ctrl *AccountsController) AdminBulkActionPost(c *fiber.Ctx) error {
	admin, err := AdminFromCtx(c)
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	payload := BulkActionPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	ids := make([]uuid.UUID, 0, len(payload.UserIDs))
	for _, raw := range payload.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return WriteError(c, ctrl.Logger, errors.New("user id is not valid", errors.CategoryBadInput).
				WithMetadata(map[string]any{"user_id": raw}))
		}
		ids = append(ids, id)
	}

	affected, err := ctrl.Admin.Bulk(c.Context(), actorRef(admin), BulkAction(payload.Action), ids, requestMeta(c))
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{
		"message":  "Bulk " + payload.Action + " completed",
		"affected": affected,
	})
}

func (ctrl *AccountsController) AdminActivityLogsGet(c *fiber.Ctx) error {
	filter := ActivityFilter{
		Action: ActivityAction(c.Query("action")),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}

	if raw := c.Query("actor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return WriteError(c, ctrl.Logger, errors.New("actor id is not valid", errors.CategoryBadInput))
		}
		filter.ActorID = id
	}

	logs, total, err := ctrl.Admin.ListActivity(c.Context(), filter)
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
	})
}

func (ctrl *AccountsController) adminTargetAction(c *fiber.Ctx, run func(actor ActorRef, targetID uuid.UUID, meta RequestMeta) (any, error)) error {
	admin, err := AdminFromCtx(c)
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	payload := AdminTargetPayload{}
	if err := parsePayload(c, &payload); err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	targetID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return WriteError(c, ctrl.Logger, errors.New("user id is not valid", errors.CategoryBadInput))
	}

	body, err := run(actorRef(admin), targetID, requestMeta(c))
	if err != nil {
		return WriteError(c, ctrl.Logger, err)
	}

	return c.JSON(body)
}

func parsePayload(c *fiber.Ctx, payload interface{ Validate() error }) error {
	if err := c.BodyParser(payload); err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "could not parse request body")
	}

	if err := payload.Validate(); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "request validation failed").
			WithMetadata(map[string]any{"fields": err.Error()})
	}

	return nil
}

func actorRef(user *User) ActorRef {
	return ActorRef{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}
}

func requestMeta(c *fiber.Ctx) RequestMeta {
	return RequestMeta{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func profileView(user *User) fiber.Map {
	return fiber.Map{
		"id":           user.ID,
		"name":         user.Name,
		"email":        user.Email,
		"role":         user.Role,
		"bio":          user.Bio,
		"phone_number": user.Phone,
		"website":      user.Website,
		"is_active":    user.IsActive,
		"is_verified":  user.IsVerified,
		"last_login":   user.LastLogin,
		"login_count":  user.LoginCount,
		"created_at":   user.CreatedAt,
	}
}
