package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	jwtmw "github.com/tech-arch1tect/rentid/middleware/jwt"
	"github.com/tech-arch1tect/rentid/services/auth"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/zap"
)

// AuthService is the credential lifecycle the handlers drive.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.RegisterResult, error)
	VerifyEmail(ctx context.Context, code, token string) (*auth.VerifyResult, error)
	CheckToken(ctx context.Context, token string) (bool, error)
	Resend(ctx context.Context, email string, purpose verification.Purpose) (*auth.IssueResult, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, in auth.ResetPasswordInput) error
	ChangePassword(ctx context.Context, userID uint, in auth.ChangePasswordInput) error
	Me(ctx context.Context, userID uint) (*users.User, error)
	Logout(ctx context.Context, token string) error
	Refresh(ctx context.Context, token string) (*jwt.SessionToken, error)
}

type Handler struct {
	auth        AuthService
	maintenance Maintenance
	logger      *logging.Service
	debug       bool
	health      func(ctx context.Context) error
}

func New(authService AuthService, maintenance Maintenance, logger *logging.Service, debug bool) *Handler {
	return &Handler{auth: authService, maintenance: maintenance, logger: logger, debug: debug}
}

type RegisterRequest struct {
	Name                 string `json:"name" example:"Ana Torres"`
	Email                string `json:"email" example:"ana@example.com"`
	Phone                string `json:"phone" example:"3001234567"`
	Address              string `json:"address" example:"Calle 10 #20-30"`
	DocumentID           string `json:"document_id" example:"1020304050"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation,omitempty"`
}

type RegisterResponse struct {
	User              users.Profile `json:"user"`
	VerificationToken string        `json:"verification_token"`
	ExpiresIn         int           `json:"expires_in" doc:"minutes until the code expires"`
}

type VerifyEmailRequest struct {
	Code  string `json:"code" example:"123456"`
	Token string `json:"token"`
}

type CheckTokenRequest struct {
	Token string `json:"token"`
}

type TokenStatus struct {
	Valid bool `json:"valid"`
}

type ResendRequest struct {
	Email   string `json:"email" example:"ana@example.com"`
	Purpose string `json:"purpose,omitempty" doc:"email_verification (default) or password_reset"`
}

type ResendResponse struct {
	ExpiresIn int `json:"expires_in" doc:"minutes until the code expires"`
}

type LoginRequest struct {
	Email    string `json:"email" example:"ana@example.com"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

// SessionResponse is returned whenever a bearer token is handed out.
type SessionResponse struct {
	User      *users.Profile `json:"user,omitempty"`
	Token     string         `json:"token,omitempty"`
	TokenType string         `json:"token_type,omitempty"`
	ExpiresIn int            `json:"expires_in,omitempty" doc:"seconds until the token expires"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" example:"ana@example.com"`
}

type ResetPasswordRequest struct {
	Email                string `json:"email" example:"ana@example.com"`
	Code                 string `json:"code,omitempty" doc:"numeric code, mutually exclusive with token"`
	Token                string `json:"token,omitempty" doc:"link token, mutually exclusive with code"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type ChangePasswordRequest struct {
	CurrentPassword         string `json:"current_password"`
	NewPassword             string `json:"new_password"`
	NewPasswordConfirmation string `json:"new_password_confirmation"`
}

const forgotPasswordMessage = "if the address is registered, a password reset code has been sent"

func sessionResponse(user *users.User, session *jwt.SessionToken) SessionResponse {
	var resp SessionResponse
	if user != nil {
		profile := user.Profile()
		resp.User = &profile
	}
	if session != nil {
		resp.Token = session.Token
		resp.TokenType = session.TokenType
		resp.ExpiresIn = session.ExpiresIn
		expiresAt := session.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	result, err := h.auth.Register(c.Request().Context(), auth.RegisterInput{
		Name:                 req.Name,
		Email:                req.Email,
		Phone:                req.Phone,
		Address:              req.Address,
		DocumentID:           req.DocumentID,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		return h.respond(c, err)
	}

	return created(c, "registration successful, check your email for the verification code", RegisterResponse{
		User:              result.User.Profile(),
		VerificationToken: result.Record.Token,
		ExpiresIn:         minutes(result.Record.Lifetime()),
	})
}

func (h *Handler) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	result, err := h.auth.VerifyEmail(c.Request().Context(), req.Code, req.Token)
	if err != nil {
		return h.respond(c, err)
	}

	if h.logger != nil {
		h.logger.Info("email verified over http", append(ParseDevice(c.Request().UserAgent()).fields(),
			zap.Uint("user_id", result.User.ID), zap.String("ip", c.RealIP()))...)
	}
	return ok(c, "email verified", sessionResponse(result.User, result.Session))
}

func (h *Handler) CheckToken(c echo.Context) error {
	var req CheckTokenRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	valid, err := h.auth.CheckToken(c.Request().Context(), req.Token)
	if err != nil {
		return h.respond(c, err)
	}
	if !valid {
		return c.JSON(http.StatusNotFound, Envelope{Message: "token is invalid or expired", Data: TokenStatus{}})
	}
	return ok(c, "", TokenStatus{Valid: true})
}

func (h *Handler) ResendCode(c echo.Context) error {
	var req ResendRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	purpose := verification.Purpose(req.Purpose)
	if purpose == "" {
		purpose = verification.PurposeEmailVerification
	}

	result, err := h.auth.Resend(c.Request().Context(), req.Email, purpose)
	if err != nil {
		return h.respond(c, err)
	}
	return ok(c, "verification code sent", ResendResponse{ExpiresIn: minutes(result.ExpiresIn)})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	device := ParseDevice(c.Request().UserAgent())
	result, err := h.auth.Login(c.Request().Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Remember: req.Remember,
	})
	if err != nil {
		if h.logger != nil {
			h.logger.Info("login rejected", append(device.fields(),
				logging.Email(req.Email), zap.String("ip", c.RealIP()), zap.Error(err))...)
		}
		return h.respond(c, err)
	}

	if h.logger != nil {
		h.logger.Info("login succeeded", append(device.fields(),
			zap.Uint("user_id", result.User.ID), zap.String("ip", c.RealIP()))...)
	}
	return ok(c, "login successful", sessionResponse(result.User, result.Session))
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	if err := h.auth.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return h.respond(c, err)
	}
	return ok(c, forgotPasswordMessage, nil)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	err := h.auth.ResetPassword(c.Request().Context(), auth.ResetPasswordInput{
		Email:                req.Email,
		Code:                 req.Code,
		Token:                req.Token,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		return h.respond(c, err)
	}
	return ok(c, "password has been reset", nil)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	err := h.auth.ChangePassword(c.Request().Context(), jwtmw.GetUserID(c), auth.ChangePasswordInput{
		CurrentPassword:         req.CurrentPassword,
		NewPassword:             req.NewPassword,
		NewPasswordConfirmation: req.NewPasswordConfirmation,
	})
	if err != nil {
		return h.respond(c, err)
	}
	return ok(c, "password updated", nil)
}

func (h *Handler) Me(c echo.Context) error {
	user, err := h.auth.Me(c.Request().Context(), jwtmw.GetUserID(c))
	if err != nil {
		return h.respond(c, err)
	}
	return ok(c, "", user.Profile())
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.auth.Logout(c.Request().Context(), jwtmw.GetToken(c)); err != nil {
		return h.respond(c, err)
	}
	return ok(c, "logged out", nil)
}

func (h *Handler) Refresh(c echo.Context) error {
	session, err := h.auth.Refresh(c.Request().Context(), jwtmw.GetToken(c))
	if err != nil {
		return h.respond(c, err)
	}
	return ok(c, "token refreshed", sessionResponse(nil, session))
}

func minutes(d time.Duration) int {
	return int(d.Round(time.Minute) / time.Minute)
}
