package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubVerifier map[string]string

func (v stubVerifier) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	uid, ok := v[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &auth.Token{UID: uid}, nil
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": UserID(c.Request.Context())})
	})
	return r
}

func get(r http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(stubVerifier{"good": "user-1"}))

	w := get(r, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authorization header is required")

	w = get(r, http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid auth token")

	w = get(r, http.Header{"Authorization": {"Bearer good"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":"user-1"}`, w.Body.String())
}

func TestUserIDOutsideAuth(t *testing.T) {
	assert.Empty(t, UserID(context.Background()))
	assert.Nil(t, ForContext(context.Background()))
}

func TestRequestLoggerSetsID(t *testing.T) {
	r := newRouter(RequestLogger(zerolog.Nop()))

	w := get(r, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = get(r, http.Header{RequestIDHeader: {"abc"}})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	r := newRouter(RateLimit(time.Hour, 2))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	w := get(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
}

func TestRateLimitDisabled(t *testing.T) {
	r := newRouter(RateLimit(0, 0))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, nil).Code)
	}
}

func (rl *rateLimiter) size() int {
	n := 0
	rl.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func TestRateLimitEvictsIdleCallers(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(time.Second, 2, func() time.Time { return now })
	r := newRouter(rl.handle)

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, from(fmt.Sprintf("10.0.0.%d", i)))
	}
	assert.Equal(t, 50, rl.size())

	assert.Equal(t, http.StatusOK, from("10.0.1.1"))
	assert.Equal(t, http.StatusOK, from("10.0.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.1.1"))

	now = now.Add(3 * time.Second)
	assert.Equal(t, http.StatusOK, from("10.0.1.1"))
	assert.Equal(t, 1, rl.size(), "idle callers are dropped")
}
