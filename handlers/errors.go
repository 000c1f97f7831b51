package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/rentid/services/auth"
	"go.uber.org/zap"
)

// respond writes err as an envelope with the status its kind maps to.
func (h *Handler) respond(c echo.Context, err error) error {
	var validation *auth.ValidationError
	if errors.As(err, &validation) {
		return c.JSON(http.StatusUnprocessableEntity, Envelope{
			Message: "validation failed",
			Errors:  validation.Fields,
		})
	}

	var limited *auth.RateLimitedError
	if errors.As(err, &limited) {
		return c.JSON(http.StatusTooManyRequests, Envelope{
			Message:    "please wait before requesting a new code",
			RetryAfter: limited.Remaining,
		})
	}

	switch {
	case errors.Is(err, auth.ErrNoChange):
		return c.JSON(http.StatusUnprocessableEntity, Envelope{
			Message: err.Error(),
			Errors:  map[string]string{"new_password": err.Error()},
		})
	case errors.Is(err, auth.ErrInvalidOrExpired), errors.Is(err, auth.ErrAlreadyVerified):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "the provided credentials do not match our records")
	case errors.Is(err, auth.ErrEmailNotVerified):
		return c.JSON(http.StatusForbidden, Envelope{
			Message: "you must verify your email address before signing in",
			Data:    map[string]bool{"verification_required": true},
		})
	case errors.Is(err, auth.ErrAccountInactive):
		return fail(c, http.StatusForbidden, "your account is inactive, contact the administrator")
	case errors.Is(err, auth.ErrIdentityNotFound):
		return fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrMailDispatch):
		return fail(c, http.StatusInternalServerError, "failed to send the email, please try again")
	}

	if h.logger != nil {
		h.logger.Error("request failed", zap.Error(err), zap.String("path", c.Path()))
	}
	envelope := Envelope{Message: "internal server error"}
	if h.debug {
		envelope.Errors = map[string]string{"detail": err.Error()}
	}
	return c.JSON(http.StatusInternalServerError, envelope)
}

// HTTPErrorHandler renders errors that escape handlers, such as middleware
// rejections, in the envelope format.
func (h *Handler) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		if writeErr := h.respond(c, err); writeErr != nil && h.logger != nil {
			h.logger.Error("failed to write error response", zap.Error(writeErr))
		}
		return
	}

	envelope := Envelope{Message: http.StatusText(httpErr.Code)}
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		envelope.Message = msg
	}
	if httpErr.Code == http.StatusTooManyRequests {
		envelope.RetryAfter, _ = strconv.Atoi(c.Response().Header().Get("Retry-After"))
	}
	if httpErr.Code >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error("request failed", zap.Error(err), zap.String("path", c.Path()))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(httpErr.Code)
	} else {
		err = c.JSON(httpErr.Code, envelope)
	}
	if err != nil && h.logger != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}
