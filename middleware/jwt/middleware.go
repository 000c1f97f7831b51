package jwt

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/rentid/services/jwt"
)

const (
	UserIDKey = "_jwt_user_id"
	ClaimsKey = "_jwt_claims"
	TokenKey  = "_jwt_token"
)

// Validator is the part of the session issuer the middleware needs.
type Validator interface {
	Validate(ctx context.Context, token string) (*jwt.Claims, error)
}

// ExtractToken returns the bearer token from the Authorization header.
func ExtractToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "JWT token required")
	}
	return token, nil
}

func RequireJWT(validator Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, err := ExtractToken(c)
			if err != nil {
				return err
			}

			claims, err := validator.Validate(c.Request().Context(), tokenString)
			if err != nil {
				switch {
				case errors.Is(err, jwt.ErrExpiredToken):
					return echo.NewHTTPError(http.StatusUnauthorized, "JWT token has expired")
				case errors.Is(err, jwt.ErrTokenRevoked):
					return echo.NewHTTPError(http.StatusUnauthorized, "JWT token has been revoked")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Authentication failed")
				}
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(ClaimsKey, claims)
			c.Set(TokenKey, tokenString)

			return next(c)
		}
	}
}

// RequireRole must run after RequireJWT.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetClaims(c)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
		}
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetClaims(c echo.Context) *jwt.Claims {
	if claims, ok := c.Get(ClaimsKey).(*jwt.Claims); ok {
		return claims
	}
	return nil
}

func GetToken(c echo.Context) string {
	if token, ok := c.Get(TokenKey).(string); ok {
		return token
	}
	return ""
}
