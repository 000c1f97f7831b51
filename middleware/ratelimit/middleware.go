package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
)

type Config struct {
	Store          Store
	Rate           int
	Period         time.Duration
	CountMode      config.CountingMode
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
	Logger         *logging.Service
	Now            func() time.Time
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}

	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.CountMode == "" {
		cfg.CountMode = config.CountAll
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := cfg.KeyGenerator(c)
			now := cfg.Now()
			resetTime := now.Add(cfg.Period)

			count, existingResetTime, exists, err := cfg.Store.Get(ctx, key)
			if err != nil {
				// an unavailable store never blocks traffic
				cfg.warn("rate limit store unavailable", err)
				return next(c)
			}
			if exists {
				resetTime = existingResetTime
			}

			if count >= cfg.Rate {
				setHeaders(c, cfg.Rate, 0, resetTime)
				retryAfter := int(resetTime.Sub(now).Seconds() + 0.999)
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return cfg.OnLimitReached(c)
			}

			var newCount int
			if cfg.CountMode == config.CountAll {
				newCount, err = cfg.Store.Increment(ctx, key, resetTime)
			} else {
				newCount = count + 1
				err = cfg.Store.Set(ctx, key, newCount, resetTime)
			}
			if err != nil {
				cfg.warn("rate limit store update failed", err)
			}

			setHeaders(c, cfg.Rate, max(cfg.Rate-newCount, 0), resetTime)

			handlerErr := next(c)

			if cfg.CountMode != config.CountAll {
				statusCode := c.Response().Status
				if httpErr, ok := handlerErr.(*echo.HTTPError); ok {
					statusCode = httpErr.Code
				}

				shouldCount := false
				switch cfg.CountMode {
				case config.CountFailures:
					shouldCount = statusCode >= 400
				case config.CountSuccess:
					shouldCount = statusCode < 400
				}

				// the provisional hit is replaced by the real outcome
				switch {
				case shouldCount:
					err = cfg.Store.Set(ctx, key, count+1, resetTime)
				case count > 0:
					err = cfg.Store.Set(ctx, key, count, resetTime)
				default:
					err = cfg.Store.Reset(ctx, key)
				}
				if err != nil {
					cfg.warn("rate limit store update failed", err)
				}
			}

			return handlerErr
		}
	}
}

func (cfg *Config) warn(msg string, err error) {
	if cfg.Logger != nil {
		cfg.Logger.Warn(msg, zap.Error(err))
	}
}

func setHeaders(c echo.Context, limit, remaining int, resetTime time.Time) {
	c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Response().Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "rate_limit:" + realIP
}

// RouteKeyGenerator keys by client address and route so each auth endpoint
// has its own budget.
func RouteKeyGenerator(c echo.Context) string {
	return fmt.Sprintf("%s:%s:%s", DefaultKeyGenerator(c), c.Request().Method, c.Path())
}

func DefaultOnLimitReached(c echo.Context) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}
