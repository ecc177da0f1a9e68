package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// AuthController exposes the auth workflows as a JSON API. The
// controller owns request parsing, validation and the error wire
// shape; the workflows own the semantics.
type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Config   Config
	Auth     *Auther
	Mailer   Mailer
	Activity ActivitySink
}

func NewAuthController(repo RepositoryManager, cfg Config, auther *Auther) *AuthController {
	return &AuthController{
		Logger:   defLogger{},
		Repo:     repo,
		Config:   cfg,
		Auth:     auther,
		Mailer:   noopMailer{},
		Activity: noopActivitySink{},
	}
}

func (a *AuthController) WithLogger(logger Logger) *AuthController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a *AuthController) WithMailer(mailer Mailer) *AuthController {
	a.Mailer = normalizeMailer(mailer)
	return a
}

func (a *AuthController) WithActivitySink(sink ActivitySink) *AuthController {
	a.Activity = normalizeActivitySink(sink)
	return a
}

// RegisterRoutes mounts the auth endpoints under /auth.
func (a *AuthController) RegisterRoutes(app *fiber.App) {
	grp := app.Group("/auth")

	grp.Post("/register", a.Register)
	grp.Post("/login", a.Login)
	grp.Post("/mfa", a.ConfirmMFA)
	grp.Post("/refresh", a.Refresh)
	grp.Post("/verify-email", a.VerifyEmail)
	grp.Post("/verify-email/resend", a.ResendVerification)
	grp.Post("/password-reset", a.PasswordResetRequest)
	grp.Post("/password-reset/complete", a.PasswordResetComplete)

	grp.Post("/logout", RequireAccessToken(a.Auth.TokenService(), a.Repo, a.Config), a.Logout)
}

// RegistrationPayload is the register request body
type RegistrationPayload struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Company         string `json:"company"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Company, validation.Length(0, 200)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	payload := new(RegistrationPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	var res *RegisterUserResponse
	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Company:   payload.Company,
		Password:  payload.Password,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	ph := NewRegisterUserHandler(a.Repo, a.Config).
		WithMailer(a.Mailer).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := ph.Execute(c.UserContext(), req); err != nil {
		a.Logger.Error("register user error: %v", err)
		return a.renderError(c, err)
	}

	if a.Debug {
		fmt.Println(print.MaybePrettyJSON(res))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Registration successful, check your email to verify your account",
		"userId":  res.UserID,
	})
}

// LoginPayload is the login request body
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	result, err := a.Auth.Login(c.UserContext(), payload.Email, payload.Password, loginMetadata(c))
	if err != nil {
		return a.renderError(c, err)
	}

	if result.RequiresMFA {
		return c.JSON(fiber.Map{
			"requiresMfa": true,
			"mfaToken":    result.MFAToken,
		})
	}

	return c.JSON(loginResponse(result))
}

// MFAPayload is the MFA completion request body
type MFAPayload struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
}

// Validate will validate the payload
func (r MFAPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MFAToken, validation.Required),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 8), is.Digit),
	)
}

func (a *AuthController) ConfirmMFA(c *fiber.Ctx) error {
	payload := new(MFAPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	result, err := a.Auth.ConfirmMFA(c.UserContext(), payload.MFAToken, payload.Code, loginMetadata(c))
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(loginResponse(result))
}

// RefreshPayload is the token refresh request body
type RefreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *AuthController) Refresh(c *fiber.Ctx) error {
	payload := new(RefreshPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	result, err := a.Auth.Refresh(c.UserContext(), payload.RefreshToken)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

// LogoutPayload is the logout request body
type LogoutPayload struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

func (a *AuthController) Logout(c *fiber.Ctx) error {
	payload := new(LogoutPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	user, err := CurrentUser(c, a.Config.GetContextKey())
	if err != nil {
		return a.renderError(c, err)
	}

	if payload.All {
		err = a.Auth.LogoutAll(c.UserContext(), user)
	} else {
		err = a.Auth.Logout(c.UserContext(), user, payload.RefreshToken)
	}

	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Logout successful",
	})
}

// VerifyEmailPayload is the email verification request body
type VerifyEmailPayload struct {
	Token string `json:"token"`
}

// Validate will validate the payload
func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *AuthController) VerifyEmail(c *fiber.Ctx) error {
	payload := new(VerifyEmailPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	var res *VerifyEmailResponse
	req := VerifyEmailMessage{
		Token: payload.Token,
		OnResponse: func(resp *VerifyEmailResponse) {
			res = resp
		},
	}

	ph := NewVerifyEmailHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := ph.Execute(c.UserContext(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Email verified",
		"email":   res.Email,
	})
}

// ResendVerificationPayload is the verification resend request body
type ResendVerificationPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r ResendVerificationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ResendVerification(c *fiber.Ctx) error {
	payload := new(ResendVerificationPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	req := RequestVerificationMessage{Email: payload.Email}

	ph := NewRequestVerificationHandler(a.Repo, a.Config).
		WithMailer(a.Mailer).
		WithLogger(a.Logger)

	if err := ph.Execute(c.UserContext(), req); err != nil {
		a.Logger.Error("verification request error: %v", err)
		return a.renderError(c, err)
	}

	// identical response whether or not the email has an account
	return c.JSON(fiber.Map{
		"message": "If the email matches a pending account, a verification email has been sent",
	})
}

// PasswordResetRequestPayload is the password reset request body
type PasswordResetRequestPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) PasswordResetRequest(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	req := InitializePasswordResetMessage{Email: payload.Email}

	ph := NewInitializePasswordResetHandler(a.Repo, a.Config).
		WithMailer(a.Mailer).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := ph.Execute(c.UserContext(), req); err != nil {
		a.Logger.Error("password reset request error: %v", err)
		return a.renderError(c, err)
	}

	// identical response whether or not the email has an account
	return c.JSON(fiber.Map{
		"message": "If the email matches an account, a password reset email has been sent",
	})
}

// PasswordResetCompletePayload is the password reset completion body
type PasswordResetCompletePayload struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetCompletePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetComplete(c *fiber.Ctx) error {
	payload := new(PasswordResetCompletePayload)

	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	req := FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	}

	ph := NewFinalizePasswordResetHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := ph.Execute(c.UserContext(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Password updated, all sessions have been signed out",
	})
}

func loginMetadata(c *fiber.Ctx) LoginMetadata {
	return LoginMetadata{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func loginResponse(result *LoginResult) fiber.Map {
	return fiber.Map{
		"user": fiber.Map{
			"id":        result.User.ID.String(),
			"email":     result.User.Email,
			"firstName": result.User.FirstName,
			"lastName":  result.User.LastName,
			"role":      result.User.Role,
		},
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	}
}

func (a *AuthController) renderParseError(c *fiber.Ctx, err error) error {
	a.Logger.Error("failed to parse request body: %v", err)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "INVALID_PAYLOAD",
			"message": "failed to parse request body",
		},
	})
}

func (a *AuthController) renderValidationError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "VALIDATION_ERROR",
			"message": err.Error(),
		},
	})
}

// renderError maps rich errors onto the wire: the HTTP status comes
// from the error's code, the body carries the stable text code.
// Anything without a mapping collapses to a generic 500 so internals
// never leak.
func (a *AuthController) renderError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code < 500 {
		code := richErr.TextCode
		if code == "" {
			code = "REQUEST_ERROR"
		}
		return c.Status(richErr.Code).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    code,
				"message": richErr.Message,
			},
		})
	}

	a.Logger.Error("unhandled error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "INTERNAL_ERROR",
			"message": "internal server error",
		},
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
