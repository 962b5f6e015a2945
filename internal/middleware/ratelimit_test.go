package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/security"
	"github.com/scout-hq/scout-api/pkg/config"
)

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		Policies: []config.RateLimitPolicy{
			{Method: "POST", PathPrefix: "/api/v1/auth/login", Limit: 2, Window: 5 * time.Minute},
		},
	}
}

func newRateLimitRouter(t *testing.T, allowOnError bool) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := security.NewRateLimiter(client, zap.NewNop())
	table := NewRatePolicyTable(testRateLimitConfig())

	r := gin.New()
	r.Use(RateLimit(limiter, table, nil, zap.NewNop(), allowOnError))
	r.POST("/api/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/other", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, mr
}

func TestRatePolicyTableResolve(t *testing.T) {
	table := NewRatePolicyTable(testRateLimitConfig())

	limit, window := table.Resolve("POST", "/api/v1/auth/login")
	assert.Equal(t, 2, limit)
	assert.Equal(t, 5*time.Minute, window)

	// Method mismatch falls through to the default.
	limit, window = table.Resolve("GET", "/api/v1/auth/login")
	assert.Equal(t, 100, limit)
	assert.Equal(t, time.Minute, window)

	limit, _ = table.Resolve("GET", "/api/v1/candidates")
	assert.Equal(t, 100, limit)
}

func TestRateLimitHeadersAndDenial(t *testing.T) {
	r, _ := newRateLimitRouter(t, false)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-Rate-Limit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-Rate-Limit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-Rate-Limit-Reset"))
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-Rate-Limit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitSeparateClients(t *testing.T) {
	r, _ := newRateLimitRouter(t, false)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.8")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitFailClosed(t *testing.T) {
	r, mr := newRateLimitRouter(t, false)
	mr.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimitFailOpenWhenConfigured(t *testing.T) {
	r, mr := newRateLimitRouter(t, true)
	mr.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
