package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken     = errors.New("invalid JWT token")
	ErrExpiredToken     = errors.New("JWT token has expired")
	ErrMalformedToken   = errors.New("malformed JWT token")
	ErrInvalidSignature = errors.New("invalid JWT token signature")
	ErrTokenRevoked     = errors.New("JWT token has been revoked")
)

const TokenTypeBearer = "bearer"

type Claims struct {
	UserID   uint   `json:"user_id"`
	Role     string `json:"role,omitempty"`
	Remember bool   `json:"remember,omitempty"`
	jwt.RegisteredClaims
}

// SessionToken is what a client receives after login, verification or refresh.
type SessionToken struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresIn int       `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
	Remember  bool      `json:"remember"`
}

type RevocationService interface {
	RevokeToken(ctx context.Context, jti string, userID uint, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type Service struct {
	config            *config.Config
	logger            *logging.Service
	revocationService RevocationService
	now               func() time.Time
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) SetRevocationService(revocationService RevocationService) {
	s.revocationService = revocationService
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// TTL is the lifetime of a token issued with the given remember flag.
func (s *Service) TTL(remember bool) time.Duration {
	if remember {
		return s.config.JWT.RememberExpiry
	}
	return s.config.JWT.AccessExpiry
}

func (s *Service) Issue(userID uint, role string, remember bool) (*SessionToken, error) {
	now := s.now()
	ttl := s.TTL(remember)
	jti := uuid.New().String()
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID:   userID,
		Role:     role,
		Remember: remember,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.JWT.Issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  []string{s.config.JWT.Issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.JWT.SecretKey))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign JWT token", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to generate JWT token: %w", err)
	}

	return &SessionToken{
		Token:     tokenString,
		TokenType: TokenTypeBearer,
		ExpiresIn: int(ttl.Seconds()),
		ExpiresAt: expiresAt,
		Remember:  remember,
	}, nil
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}

		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}

		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}

		return []byte(s.config.JWT.SecretKey), nil
	},
		jwt.WithIssuer(s.config.JWT.Issuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if s.logger != nil {
			s.logger.Debug("JWT token validation failed", zap.Error(err))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrSignatureInvalid), errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Validate parses tokenString and rejects it when it has been invalidated.
func (s *Service) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if s.revocationService != nil {
		revoked, err := s.revocationService.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("failed to check token revocation status", zap.Error(err))
			}
		} else if revoked {
			if s.logger != nil {
				s.logger.Warn("revoked token presented", zap.String("jti", claims.ID), zap.Uint("user_id", claims.UserID))
			}
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

func (s *Service) Invalidate(ctx context.Context, tokenString string) error {
	claims, err := s.Validate(ctx, tokenString)
	if err != nil {
		return err
	}

	if s.revocationService == nil {
		if s.logger != nil {
			s.logger.Warn("token invalidation requested but revocation service not available")
		}
		return nil
	}

	if err := s.revocationService.RevokeToken(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// Refresh issues a replacement with the same subject and remember flag and
// invalidates the presented token. The replacement carries role; an empty
// role keeps the one in the presented claims.
func (s *Service) Refresh(ctx context.Context, tokenString, role string) (*SessionToken, error) {
	claims, err := s.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = claims.Role
	}

	next, err := s.Issue(claims.UserID, role, claims.Remember)
	if err != nil {
		return nil, err
	}

	if s.revocationService != nil {
		if err := s.revocationService.RevokeToken(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time); err != nil {
			return nil, fmt.Errorf("failed to invalidate refreshed token: %w", err)
		}
	}

	if s.logger != nil {
		s.logger.Debug("session token refreshed", zap.Uint("user_id", claims.UserID))
	}
	return next, nil
}
