package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// DefaultRouteForRole picks the landing route after a successful sign-in.
func DefaultRouteForRole(role Role) string {
	switch role {
	case RoleProducer:
		return "/producer/dashboard"
	case RoleCompany:
		return "/company/dashboard"
	default:
		return "/learning"
	}
}

// RegisterAuthRoutes mounts the authentication surface on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Activate, controller.ActivateShow).
		SetName("activate.get")
	app.Post(controller.Routes.Activate, controller.ActivateSubmit).
		SetName("activate.post")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetGet).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")
}

type AuthControllerRoutes struct {
	Login         string
	Logout        string
	Activate      string
	PasswordReset string
}

type AuthControllerViews struct {
	Login         string
	Activate      string
	PasswordReset string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Flow         *ActivationFlow
	Manager      *SessionManager
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Auther       HTTPAuthenticator
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerAuthenticator(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerRepository(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerActivationFlow(flow *ActivationFlow) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Flow = flow
		return c
	}
}

func WithControllerSessionManager(manager *SessionManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Manager = manager
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func WithControllerViews(views *AuthControllerViews) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if views != nil {
			c.Views = views
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:         "/login",
			Logout:        "/logout",
			Activate:      "/activate",
			PasswordReset: "/password-reset",
		},
		Views: &AuthControllerViews{
			Login:         "login",
			Activate:      "activate",
			PasswordReset: "password_reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Flow == nil {
		panic("Missing ActivationFlow in auth controller...")
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RoleHint   string `form:"role_hint" json:"role_hint"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetRoleHint selects the producer or company sign-in path.
func (r LoginRequest) GetRoleHint() Role {
	return Role(r.RoleHint)
}

func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
		validation.Field(
			&r.RoleHint,
			validation.In("", string(RoleProducer), string(RoleCompany)),
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %s", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("======= AUTH LOGIN ======")
		a.Logger.Debug(print.MaybePrettyJSON(payload))
		a.Logger.Debug("=========================")
	}

	result, err := a.Auther.Login(ctx, payload)
	if err != nil {
		errs["authentication"] = TranslateAuthError(err)
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, DefaultRouteForRole(result.Role.Role))

	if result.Warning != "" {
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": result.Warning,
		}).Redirect(redirect, router.StatusSeeOther)
	}

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

// ActivateShow resolves the invitation link into a session and renders the
// activation form with the fields the collaborator still has to fill.
func (a *AuthController) ActivateShow(ctx router.Context) error {
	req := ActivationRequest{
		Token:    ctx.Query("token", ""),
		Email:    ctx.Query("email", ""),
		Fragment: ctx.Query("fragment", ""),
	}

	session, err := a.Flow.ResolveSession(ctx.Context(), req)
	if err != nil {
		a.Logger.Error("activation resolve session: %s", err)
		return ctx.Render(a.Views.Activate, router.ViewContext{
			"errors": map[string]string{"activation": TranslateAuthError(err)},
			"record": nil,
		})
	}

	state, err := a.Flow.Inspect(ctx.Context(), session)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Activate, router.ViewContext{
		"errors":                nil,
		"email":                 session.User.Email,
		"requires_profile":      state.RequiresProfile,
		"needs_password_change": state.NeedsPasswordChange,
	})
}

// ActivateSubmitPayload is the activation form payload.
type ActivateSubmitPayload struct {
	Token           string `form:"token" json:"token"`
	Email           string `form:"email" json:"email"`
	Fragment        string `form:"fragment" json:"fragment"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	Phone           string `form:"phone" json:"phone"`
	BirthDate       string `form:"birth_date" json:"birth_date"`
	Gender          string `form:"gender" json:"gender"`
	State           string `form:"state" json:"state"`
	City            string `form:"city" json:"city"`
	Country         string `form:"country" json:"country"`
}

// Validate will validate the payload
func (r ActivateSubmitPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(MinPasswordLength, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
		validation.Field(&r.BirthDate, validation.Date("2006-01-02")),
	)
}

func (r ActivateSubmitPayload) profile() *ProfileCompletion {
	if r.Gender == "" && r.BirthDate == "" && r.State == "" {
		return nil
	}

	profile := &ProfileCompletion{
		Phone:   r.Phone,
		Gender:  r.Gender,
		State:   r.State,
		City:    r.City,
		Country: r.Country,
	}

	if r.BirthDate != "" {
		if parsed, err := time.Parse("2006-01-02", r.BirthDate); err == nil {
			profile.BirthDate = &parsed
		}
	}

	return profile
}

func (a *AuthController) ActivateSubmit(ctx router.Context) error {
	payload := new(ActivateSubmitPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("activation parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(router.StatusBadRequest).Render(a.Views.Activate, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("activation validate payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Activate, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	session, err := a.Flow.ResolveSession(ctx.Context(), ActivationRequest{
		Token:    payload.Token,
		Email:    payload.Email,
		Fragment: payload.Fragment,
	})
	if err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": TranslateAuthError(err),
		}).Render(a.Views.Activate, router.ViewContext{
			"errors": map[string]string{"activation": TranslateAuthError(err)},
			"record": payload,
		})
	}

	result, err := a.Flow.Submit(ctx.Context(), session, ActivationSubmission{
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		Profile:         payload.profile(),
	})
	if err != nil {
		a.Logger.Error("activation submit: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": TranslateAuthError(err),
		}).Render(a.Views.Activate, router.ViewContext{
			"errors": map[string]string{"activation": TranslateAuthError(err)},
			"record": payload,
		})
	}

	if a.Debug {
		a.Logger.Debug("======= ACTIVATION ======")
		a.Logger.Debug(print.MaybePrettyJSON(result))
		a.Logger.Debug("=========================")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Conta ativada com sucesso",
	}).Redirect(result.Redirect, router.StatusSeeOther)
}

func (a *AuthController) PasswordResetGet(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

// PasswordResetPost always renders the same confirmation so the form cannot
// be used to probe which emails exist.
func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(router.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Manager != nil {
		if err := a.Manager.ResetPassword(ctx.Context(), payload.Email, a.Routes.Activate); err != nil {
			a.Logger.Error("password reset request: %s", err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Se o email existir, enviaremos instruções de recuperação",
	}).Redirect(a.Routes.Login, router.StatusSeeOther)
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
