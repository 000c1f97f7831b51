package handlers

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/rentid/metrics"
	jwtmw "github.com/tech-arch1tect/rentid/middleware/jwt"
	"github.com/tech-arch1tect/rentid/openapi"
	"github.com/tech-arch1tect/rentid/services/maintenance"
	"github.com/tech-arch1tect/rentid/services/users"
)

type access int

const (
	public access = iota
	authenticated
	admin
)

type response struct {
	status      int
	data        any
	description string
}

type route struct {
	method    string
	path      string
	handler   echo.HandlerFunc
	access    access
	limited   bool
	tag       string
	summary   string
	body      any
	responses []response
}

type RouteConfig struct {
	Sessions    jwtmw.Validator
	RateLimit   echo.MiddlewareFunc
	Docs        *openapi.Document
	Metrics     *metrics.Metrics
	MetricsPath string
}

func (h *Handler) routes() []route {
	invalid := response{http.StatusBadRequest, nil, "Invalid or expired code"}
	validation := response{http.StatusUnprocessableEntity, nil, "Validation failed"}
	unauthorized := response{http.StatusUnauthorized, nil, "Missing or invalid bearer token"}

	return []route{
		{http.MethodPost, "/api/auth/register", h.Register, public, true, "auth", "Register a pending identity and mail its confirmation code",
			RegisterRequest{}, []response{{http.StatusCreated, RegisterResponse{}, "Registered"}, validation,
				{http.StatusInternalServerError, nil, "Confirmation mail could not be sent"}}},
		{http.MethodPost, "/api/auth/verify-email", h.VerifyEmail, public, true, "auth", "Confirm an email address with code and token",
			VerifyEmailRequest{}, []response{{http.StatusOK, SessionResponse{}, "Verified"}, invalid, validation}},
		{http.MethodPost, "/api/auth/verify-email-check", h.CheckToken, public, true, "auth", "Check whether a confirmation link token is still usable",
			CheckTokenRequest{}, []response{{http.StatusOK, TokenStatus{}, "Usable"}, {http.StatusNotFound, TokenStatus{}, "Unknown, used or expired"}}},
		{http.MethodPost, "/api/auth/resend-code", h.ResendCode, public, true, "auth", "Issue a fresh code once the cooldown has passed",
			ResendRequest{}, []response{{http.StatusOK, ResendResponse{}, "Code sent"},
				{http.StatusBadRequest, nil, "Already verified"}, {http.StatusNotFound, nil, "Unknown identity"},
				{http.StatusTooManyRequests, nil, "Cooldown window open"}}},
		{http.MethodPost, "/api/auth/login", h.Login, public, true, "auth", "Sign in with email and password",
			LoginRequest{}, []response{{http.StatusOK, SessionResponse{}, "Signed in"},
				{http.StatusUnauthorized, nil, "Invalid credentials"}, {http.StatusForbidden, nil, "Not verified or inactive"}}},
		{http.MethodPost, "/api/auth/forgot-password", h.ForgotPassword, public, true, "auth", "Request a password reset code",
			ForgotPasswordRequest{}, []response{{http.StatusOK, nil, "Accepted"}, validation}},
		{http.MethodPost, "/api/auth/reset-password", h.ResetPassword, public, true, "auth", "Set a new password with a reset code or token",
			ResetPasswordRequest{}, []response{{http.StatusOK, nil, "Password reset"}, invalid, validation}},
		{http.MethodGet, "/api/auth/me", h.Me, authenticated, false, "session", "Current identity",
			nil, []response{{http.StatusOK, users.Profile{}, "Profile"}, unauthorized}},
		{http.MethodPost, "/api/auth/logout", h.Logout, authenticated, false, "session", "Revoke the presented token",
			nil, []response{{http.StatusOK, nil, "Logged out"}, unauthorized}},
		{http.MethodPost, "/api/auth/refresh", h.Refresh, authenticated, false, "session", "Exchange the presented token for a fresh one",
			nil, []response{{http.StatusOK, SessionResponse{}, "Rotated"}, unauthorized}},
		{http.MethodPut, "/api/auth/password", h.ChangePassword, authenticated, false, "session", "Change the password of the current identity",
			ChangePasswordRequest{}, []response{{http.StatusOK, nil, "Password changed"}, validation, unauthorized}},
		{http.MethodPost, "/api/admin/maintenance/cleanup", h.RunCleanup, admin, false, "admin", "Delete expired verification records and revocations",
			nil, []response{{http.StatusOK, maintenance.CleanupReport{}, "Cleanup report"}, {http.StatusForbidden, nil, "Admin role required"}}},
		{http.MethodPost, "/api/admin/maintenance/purge-pending", h.RunPurgePending, admin, false, "admin", "Purge identities that never verified",
			nil, []response{{http.StatusOK, maintenance.PurgeReport{}, "Purge report"}, {http.StatusForbidden, nil, "Admin role required"}}},
		{http.MethodGet, "/healthz", h.Healthz, public, false, "system", "Liveness probe",
			nil, []response{{http.StatusOK, HealthStatus{}, "Alive"}, {http.StatusServiceUnavailable, HealthStatus{}, "Dependency down"}}},
	}
}

// Routes mounts every API route on e and describes it in rc.Docs.
func (h *Handler) Routes(e *echo.Echo, rc RouteConfig) {
	requireJWT := jwtmw.RequireJWT(rc.Sessions)
	requireAdmin := jwtmw.RequireRole(string(users.RoleAdmin))

	for _, r := range h.routes() {
		var mw []echo.MiddlewareFunc
		if r.limited && rc.RateLimit != nil {
			mw = append(mw, rc.RateLimit)
		}
		switch r.access {
		case authenticated:
			mw = append(mw, requireJWT)
		case admin:
			mw = append(mw, requireJWT, requireAdmin)
		}
		e.Add(r.method, r.path, r.handler, mw...)

		if rc.Docs != nil {
			document(rc.Docs, r)
		}
	}

	if rc.Docs != nil {
		e.GET("/api/docs/openapi.json", rc.Docs.JSONHandler())
		e.GET("/api/docs/openapi.yaml", rc.Docs.YAMLHandler())
	}
	if rc.Metrics != nil {
		path := rc.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		e.GET(path, echo.WrapHandler(rc.Metrics.Handler()))
	}
}

func document(doc *openapi.Document, r route) {
	op := doc.Operation(r.method, r.path).Summary(r.summary).Tags(r.tag)
	if r.body != nil {
		op.Body(r.body, "")
	}
	for _, resp := range r.responses {
		op.ResponseSchema(resp.status, envelopeSchema(doc, resp.data), resp.description)
	}
	if r.access != public {
		op.Security(openapi.BearerScheme)
	}
	op.Build()
}

// envelopeSchema describes Envelope with data set to the schema of example.
func envelopeSchema(doc *openapi.Document, example any) *openapi3.SchemaRef {
	schema := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("retry_after", openapi3.NewIntegerSchema()).
		WithPropertyRef("errors", &openapi3.SchemaRef{
			Value: openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewStringSchema()),
		})
	schema.Required = []string{"success"}
	if example != nil {
		schema.WithPropertyRef("data", doc.Schema(example))
	}
	return &openapi3.SchemaRef{Value: schema}
}
