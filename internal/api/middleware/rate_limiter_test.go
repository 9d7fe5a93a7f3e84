package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedApp(rl *RateLimiter) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger())})
	app.Use(rl.Handler())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	return app
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		rl := NewRateLimiter(RateLimiterConfig{Max: 5, Window: time.Minute})
		defer rl.Stop()
		app := newLimitedApp(rl)

		for i := 0; i < 5; i++ {
			resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, "5", resp.Header.Get("X-RateLimit-Limit"))

			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, "OK", string(body))
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		rl := NewRateLimiter(RateLimiterConfig{Max: 2, Window: time.Minute})
		defer rl.Stop()
		app := newLimitedApp(rl)

		for i := 0; i < 2; i++ {
			resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		}

		resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
		require.NoError(t, err)
		assert.Equal(t, 429, resp.StatusCode)
		assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, resp.Header.Get("Retry-After"))

		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"]["code"])
	})

	t.Run("limits each client separately", func(t *testing.T) {
		rl := NewRateLimiter(RateLimiterConfig{
			Max:    1,
			Window: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.Get("X-Client")
			},
		})
		defer rl.Stop()
		app := newLimitedApp(rl)

		for _, client := range []string{"a", "b"} {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("X-Client", client)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode, client)
		}

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Client", "a")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 429, resp.StatusCode)
	})

	t.Run("window resets", func(t *testing.T) {
		rl := NewRateLimiter(RateLimiterConfig{Max: 1, Window: time.Minute})
		defer rl.Stop()

		clock := time.Now()
		rl.now = func() time.Time { return clock }

		count, _ := rl.hit("ip")
		assert.Equal(t, 1, count)
		count, _ = rl.hit("ip")
		assert.Equal(t, 2, count)

		clock = clock.Add(time.Minute + time.Second)
		count, _ = rl.hit("ip")
		assert.Equal(t, 1, count)
	})

	t.Run("sweeps idle clients", func(t *testing.T) {
		rl := NewRateLimiter(RateLimiterConfig{Max: 1, Window: time.Minute})
		defer rl.Stop()

		clock := time.Now()
		rl.now = func() time.Time { return clock }
		rl.hit("old")

		clock = clock.Add(3 * time.Minute)
		rl.hit("fresh")
		rl.sweep()

		rl.mu.Lock()
		defer rl.mu.Unlock()
		assert.NotContains(t, rl.windows, "old")
		assert.Contains(t, rl.windows, "fresh")
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		rl := NewRateLimiter(RateLimiterConfig{})
		assert.Equal(t, 60, rl.config.Max)
		rl.Stop()
		rl.Stop()
	})
}
