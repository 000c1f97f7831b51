package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/rentid/config"
)

func serve(t *testing.T, mw echo.MiddlewareFunc, status int) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set("X-Real-IP", "203.0.113.7")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := mw(func(c echo.Context) error {
		return c.NoContent(status)
	})(c)
	return rec, err
}

func assertLimited(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)
}

func TestMiddleware_BasicRateLimiting(t *testing.T) {
	mw := Middleware(&Config{Store: NewMemoryStore(), Rate: 2, Period: time.Minute})

	for i := 0; i < 2; i++ {
		rec, err := serve(t, mw, http.StatusOK)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec, err := serve(t, mw, http.StatusOK)
	assertLimited(t, err)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestMiddleware_Defaults(t *testing.T) {
	cfg := &Config{}
	mw := Middleware(cfg)

	assert.NotNil(t, cfg.Store)
	assert.Equal(t, 10, cfg.Rate)
	assert.Equal(t, time.Minute, cfg.Period)
	assert.NotNil(t, cfg.KeyGenerator)
	assert.NotNil(t, cfg.OnLimitReached)
	assert.Equal(t, config.CountAll, cfg.CountMode)

	_, err := serve(t, mw, http.StatusOK)
	assert.NoError(t, err)
}

func TestMiddleware_Headers(t *testing.T) {
	now := time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)
	mw := Middleware(&Config{
		Store:  NewMemoryStore(),
		Rate:   5,
		Period: time.Minute,
		Now:    func() time.Time { return now },
	})

	rec, err := serve(t, mw, http.StatusOK)
	require.NoError(t, err)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_CountModes(t *testing.T) {
	tests := []struct {
		name        string
		mode        config.CountingMode
		status      int
		wantLimited bool
	}{
		{"all counts errors", config.CountAll, http.StatusInternalServerError, true},
		{"failures counts errors", config.CountFailures, http.StatusUnauthorized, true},
		{"failures ignores success", config.CountFailures, http.StatusOK, false},
		{"success counts success", config.CountSuccess, http.StatusOK, true},
		{"success ignores errors", config.CountSuccess, http.StatusUnprocessableEntity, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := Middleware(&Config{Store: NewMemoryStore(), Rate: 2, Period: time.Minute, CountMode: tt.mode})

			for i := 0; i < 2; i++ {
				_, err := serve(t, mw, tt.status)
				require.NoError(t, err)
			}

			_, err := serve(t, mw, tt.status)
			if tt.wantLimited {
				assertLimited(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMiddleware_CountFailuresFromHTTPError(t *testing.T) {
	mw := Middleware(&Config{Store: NewMemoryStore(), Rate: 1, Period: time.Minute, CountMode: config.CountFailures})
	e := echo.New()
	failing := mw(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	err := failing(e.NewContext(req, httptest.NewRecorder()))
	require.Error(t, err)

	err = failing(e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder()))
	assertLimited(t, err)
}

func TestMiddleware_CustomLimitReached(t *testing.T) {
	called := false
	mw := Middleware(&Config{
		Store:        NewMemoryStore(),
		Rate:         1,
		Period:       time.Minute,
		KeyGenerator: func(c echo.Context) string { return "custom" },
		OnLimitReached: func(c echo.Context) error {
			called = true
			return c.String(http.StatusTooManyRequests, "slow down")
		},
	})

	_, err := serve(t, mw, http.StatusOK)
	require.NoError(t, err)

	rec, err := serve(t, mw, http.StatusOK)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddleware_RedisStoreUnavailableFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	mw := Middleware(&Config{Store: NewRedisStore(client, "test"), Rate: 1, Period: time.Minute})
	for i := 0; i < 3; i++ {
		rec, err := serve(t, mw, http.StatusOK)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestKeyGenerators(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "192.168.1.1")
	assert.Equal(t, "rate_limit:192.168.1.1", DefaultKeyGenerator(e.NewContext(req, httptest.NewRecorder())))

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set("X-Real-IP", "192.168.1.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/auth/login")
	assert.Equal(t, "rate_limit:192.168.1.1:POST:/api/auth/login", RouteKeyGenerator(c))
}

func TestDefaultOnLimitReached(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assertLimited(t, DefaultOnLimitReached(c))
}
