package auth

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"

	"github.com/classiqueozofficial1-web/stockfx-auth/middleware/jwtware"
)

// Controller exposes the verification and admin operations over HTTP
type Controller struct {
	Debug     bool
	Logger    Logger
	Verifier  *Verifier
	Lifecycle *Lifecycle
	Auther    *Authenticator
	Routes    *ControllerRoutes
}

// ControllerRoutes holds the mount points of the route groups
type ControllerRoutes struct {
	Auth   string
	Admin  string
	Health string
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(l Logger) ControllerOption {
	return func(c *Controller) *Controller {
		c.Logger = normalizeLogger(l)
		return c
	}
}

func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

func WithVerifier(v *Verifier) ControllerOption {
	return func(c *Controller) *Controller {
		c.Verifier = v
		return c
	}
}

func WithLifecycle(l *Lifecycle) ControllerOption {
	return func(c *Controller) *Controller {
		c.Lifecycle = l
		return c
	}
}

func WithAuthenticator(a *Authenticator) ControllerOption {
	return func(c *Controller) *Controller {
		c.Auther = a
		return c
	}
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger: defLogger{},
		Routes: &ControllerRoutes{
			Auth:   "/auth",
			Admin:  "/admin",
			Health: "/health",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Verifier == nil {
		panic("Missing Verifier in auth controller...")
	}

	if c.Lifecycle == nil {
		panic("Missing Lifecycle in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

// RegisterRoutes mounts the public auth routes and the admin routes, the
// latter behind a bearer token carrying the admin role.
func RegisterRoutes(app fiber.Router, c *Controller) {
	app.Get(c.Routes.Health, c.Health)

	pub := app.Group(c.Routes.Auth)
	pub.Post("/register", c.Register)
	pub.Post("/verify", c.Verify)
	pub.Post("/resend-verification", c.ResendVerification)
	pub.Post("/login", c.Login)

	admin := app.Group(c.Routes.Admin, c.AdminGuard())
	admin.Get("/accounts", c.ListAccounts)
	admin.Get("/accounts/:id", c.GetAccount)
	admin.Put("/accounts/:id/terminate", c.TerminateAccount)
	admin.Delete("/accounts/:id", c.ArchiveAccount)
	admin.Put("/accounts/:id/restore", c.RestoreAccount)
	admin.Get("/accounts/:id/audit", c.AccountAudit)
	admin.Get("/accounts/:id/export", c.ExportAccount)
	admin.Get("/audit", c.ListAudit)
	admin.Get("/statistics", c.Statistics)
}

// AdminGuard validates the bearer token, requires the admin role and an
// admin account that is still active.
func (a *Controller) AdminGuard() fiber.Handler {
	cfg := jwtware.Config{
		TokenValidator: jwtware.TokenValidatorFunc(func(token string) (jwtware.AuthClaims, error) {
			claims, err := a.Auther.Validate(token)
			if err != nil {
				return nil, err
			}
			return claims, nil
		}),
		RequiredRole:    string(RoleAdmin),
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var richErr *goerrors.Error
			switch {
			case errors.Is(err, jwtware.ErrAccessDenied):
				return errorJSON(c, fiber.StatusForbidden, "FORBIDDEN", "admin role required", nil)
			case errors.Is(err, jwtware.ErrJWTMissingOrMalformed):
				return errorJSON(c, fiber.StatusUnauthorized, TextCodeTokenMalformed, err.Error(), nil)
			case IsTokenExpiredError(err):
				return errorJSON(c, fiber.StatusUnauthorized, TextCodeTokenExpired, ErrTokenExpired.Message, nil)
			case goerrors.As(err, &richErr) && IsDomainError(err):
				return errorJSON(c, statusFor(richErr), richErr.TextCode, richErr.Message, nil)
			case !IsMalformedError(err):
				return a.handleError(c, err, "admin guard")
			}
			return errorJSON(c, fiber.StatusUnauthorized, TextCodeTokenMalformed, ErrTokenMalformed.Message, nil)
		},
	}
	RegisterValidationListeners(&cfg, ActiveAccountListener(a.Lifecycle.GetAccount))

	return jwtware.New(cfg)
}

func (a *Controller) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// RegisterPayload is the body of POST /auth/register
type RegisterPayload struct {
	Email     string `json:"email" form:"email" query:"email"`
	Password  string `json:"password" form:"password"`
	FirstName string `json:"first_name" form:"first_name"`
	LastName  string `json:"last_name" form:"last_name"`
	Phone     string `json:"phone" form:"phone"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Phone, validation.Length(6, 20)),
	)
}

func (a *Controller) Register(c *fiber.Ctx) error {
	payload := RegisterPayload{}
	if ok, err := a.parse(c, &payload); !ok {
		return err
	}

	res, err := a.Verifier.Register(c.UserContext(), RegisterRequest{
		Email:    payload.Email,
		Password: payload.Password,
		Profile: Profile{
			FirstName: payload.FirstName,
			LastName:  payload.LastName,
			Phone:     payload.Phone,
		},
	})
	if err != nil {
		return a.handleError(c, err, "register")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"account":    res.Account,
		"channel":    res.Channel,
		"expires_at": res.ExpiresAt,
		"message":    "verification sent, check your email",
	})
}

// VerifyPayload is the body of POST /auth/verify. The secret can be sent as
// code or token, the account as identifier, email or account_id. Only link
// tokens may be sent without the account.
type VerifyPayload struct {
	Identifier string `json:"identifier" form:"identifier" query:"identifier"`
	Email      string `json:"email" form:"email" query:"email"`
	AccountID  string `json:"account_id" form:"account_id" query:"account_id"`
	Code       string `json:"code" form:"code" query:"code"`
	Token      string `json:"token" form:"token" query:"token"`

	mode SecretKind
}

func (r VerifyPayload) secret() string {
	if r.Code != "" {
		return r.Code
	}
	return r.Token
}

func (r VerifyPayload) identifier() string {
	for _, v := range []string{r.Identifier, r.AccountID, r.Email} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (r VerifyPayload) Validate() error {
	errs := validation.Errors{
		"code": validation.Validate(r.secret(), validation.Required, validation.Length(4, 64)),
	}
	if r.mode != SecretLink && r.identifier() == "" {
		errs["email"] = errors.New("cannot be blank")
	}
	return errs.Filter()
}

func (a *Controller) Verify(c *fiber.Ctx) error {
	payload := VerifyPayload{mode: a.Verifier.Policy().Mode}
	if err := c.QueryParser(&payload); err != nil {
		return a.handleError(c, ErrInvalidInput, "verify")
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return a.handleError(c, ErrInvalidInput, "verify")
		}
	}
	if err := payload.Validate(); err != nil {
		return validationError(c, err)
	}

	account, err := a.Verifier.SubmitVerification(c.UserContext(), payload.identifier(), payload.secret())
	if err != nil {
		return a.handleError(c, err, "verify")
	}

	return c.JSON(fiber.Map{
		"account": account,
		"message": "email verified",
	})
}

type ResendPayload struct {
	Email string `json:"email" form:"email" query:"email"`
}

func (r ResendPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *Controller) ResendVerification(c *fiber.Ctx) error {
	payload := ResendPayload{}
	if ok, err := a.parse(c, &payload); !ok {
		return err
	}

	if err := a.Verifier.ResendVerification(c.UserContext(), payload.Email); err != nil {
		return a.handleError(c, err, "resend verification")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "verification sent, check your email",
	})
}

type LoginPayload struct {
	Email    string `json:"email" form:"email" query:"email"`
	Password string `json:"password" form:"password"`
}

func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *Controller) Login(c *fiber.Ctx) error {
	payload := LoginPayload{}
	if ok, err := a.parse(c, &payload); !ok {
		return err
	}

	session, err := a.Auther.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return a.handleError(c, err, "login")
	}

	return c.JSON(session)
}

func (a *Controller) ListAccounts(c *fiber.Ctx) error {
	filter := AccountFilter{Status: AccountStatus(strings.ToLower(c.Query("status")))}
	if raw := c.Query("role"); raw != "" {
		role, ok := ParseRole(raw)
		if !ok {
			return a.handleError(c, ErrInvalidInput, "list accounts")
		}
		filter.Role = role
	}

	page, err := a.Lifecycle.ListAccounts(c.UserContext(), filter, c.QueryInt("page", 1), c.QueryInt("limit", DefaultPageLimit))
	if err != nil {
		return a.handleError(c, err, "list accounts")
	}

	return c.JSON(page)
}

func (a *Controller) GetAccount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return a.handleError(c, err, "get account")
	}

	account, err := a.Lifecycle.GetAccount(c.UserContext(), id)
	if err != nil {
		return a.handleError(c, err, "get account")
	}

	return c.JSON(account)
}

// ReasonPayload is the body of terminate and archive requests
type ReasonPayload struct {
	Reason string `json:"reason" form:"reason"`
}

func (r ReasonPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

func (a *Controller) TerminateAccount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return a.handleError(c, err, "terminate account")
	}

	payload := ReasonPayload{}
	if ok, err := a.parseOptional(c, &payload); !ok {
		return err
	}
	if strings.TrimSpace(payload.Reason) == "" {
		return validationError(c, validation.Errors{"reason": errors.New("cannot be blank")})
	}

	account, err := a.Lifecycle.Terminate(c.UserContext(), id, payload.Reason, a.actor(c))
	if err != nil {
		return a.handleError(c, err, "terminate account")
	}

	return c.JSON(account)
}

func (a *Controller) ArchiveAccount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return a.handleError(c, err, "archive account")
	}

	payload := ReasonPayload{}
	if ok, err := a.parseOptional(c, &payload); !ok {
		return err
	}

	account, err := a.Lifecycle.Archive(c.UserContext(), id, payload.Reason, a.actor(c))
	if err != nil {
		return a.handleError(c, err, "archive account")
	}

	return c.JSON(account)
}

func (a *Controller) RestoreAccount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return a.handleError(c, err, "restore account")
	}

	account, err := a.Lifecycle.Restore(c.UserContext(), id, a.actor(c))
	if err != nil {
		return a.handleError(c, err, "restore account")
	}

	return c.JSON(account)
}

func (a *Controller) AccountAudit(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return a.handleError(c, err, "account audit")
	}

	entries, err := a.Lifecycle.AccountAudit(c.UserContext(), id)
	if err != nil {
		return a.handleError(c, err, "account audit")
	}

	return c.JSON(fiber.Map{"items": entries, "total": len(entries)})
}

func (a *Controller) ExportAccount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return a.handleError(c, err, "export account")
	}

	bundle, err := a.Lifecycle.ExportAccountData(c.UserContext(), id, a.actor(c))
	if err != nil {
		return a.handleError(c, err, "export account")
	}

	c.Attachment("account-" + id.String() + ".json")
	return c.JSON(bundle)
}

func (a *Controller) ListAudit(c *fiber.Ctx) error {
	filter := AuditFilter{ActionType: AuditAction(c.Query("action"))}
	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return a.handleError(c, ErrInvalidInput, "list audit")
		}
		filter.AccountID = id
	}

	page, err := a.Lifecycle.ListAudit(c.UserContext(), filter, c.QueryInt("page", 1), c.QueryInt("limit", DefaultPageLimit))
	if err != nil {
		return a.handleError(c, err, "list audit")
	}

	return c.JSON(page)
}

func (a *Controller) Statistics(c *fiber.Ctx) error {
	stats, err := a.Lifecycle.GetStatistics(c.UserContext())
	if err != nil {
		return a.handleError(c, err, "statistics")
	}
	return c.JSON(stats)
}

func (a *Controller) actor(c *fiber.Ctx) AdminActor {
	actor, _ := ActorFromContext(c.UserContext())
	actor.IPAddress = c.IP()
	actor.UserAgent = c.Get(fiber.HeaderUserAgent)
	return actor
}

type validatable interface {
	Validate() error
}

// parse binds and validates the body. When ok is false the error response
// has already been written and err is what the handler should return.
func (a *Controller) parse(c *fiber.Ctx, payload validatable) (ok bool, err error) {
	if err := c.BodyParser(payload); err != nil {
		return false, errorJSON(c, fiber.StatusBadRequest, TextCodeInvalidInput, "request body could not be parsed", nil)
	}
	if err := payload.Validate(); err != nil {
		return false, validationError(c, err)
	}
	return true, nil
}

func (a *Controller) parseOptional(c *fiber.Ctx, payload validatable) (bool, error) {
	if len(c.Body()) == 0 {
		return true, nil
	}
	return a.parse(c, payload)
}

// handleError renders domain errors with their text code and hides
// everything else behind a generic message.
func (a *Controller) handleError(c *fiber.Ctx, err error, op string) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || !IsDomainError(err) {
		a.Logger.Error("request failed",
			"operation", op,
			"path", c.Path(),
			"error", err,
		)
		if a.Debug && richErr != nil {
			a.Logger.Debug("request failure details", "details", print.MaybePrettyJSON(richErr.Metadata))
		}
		return errorJSON(c, fiber.StatusInternalServerError, TextCodeInternal, "an unexpected error occurred", nil)
	}

	if a.Debug {
		a.Logger.Debug("request rejected",
			"operation", op,
			"text_code", richErr.TextCode,
			"error", richErr.Message,
		)
	}

	return errorJSON(c, statusFor(richErr), richErr.TextCode, richErr.Message, nil)
}

func statusFor(err *goerrors.Error) int {
	if err.Code >= 400 && err.Code < 600 {
		return err.Code
	}
	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func validationError(c *fiber.Ctx, err error) error {
	fields := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for k, v := range verrs {
			fields[k] = v.Error()
		}
	}
	return errorJSON(c, fiber.StatusBadRequest, TextCodeInvalidInput, "request validation failed", fields)
}

func errorJSON(c *fiber.Ctx, status int, code, message string, fields map[string]string) error {
	body := fiber.Map{
		"code":    code,
		"message": message,
	}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	return c.Status(status).JSON(fiber.Map{
		"error":     body,
		"timestamp": time.Now().UTC(),
	})
}

func paramID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, ErrInvalidInput
	}
	return id, nil
}
