package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collaborative-whiteboard/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func echoUser(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		c.String(http.StatusOK, middleware.UserID(c))
	})
	return r
}

func TestParseUserID_AcceptsStringAndNumericClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	id, err := middleware.ParseUserID(sign(t, jwt.MapClaims{"user_id": "alice", "exp": exp}, secret), secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	id, err = middleware.ParseUserID(sign(t, jwt.MapClaims{"user_id": 42, "exp": exp}, secret), secret)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestParseUserID_Rejects(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	cases := map[string]string{
		"wrong key":     sign(t, jwt.MapClaims{"user_id": "alice", "exp": exp}, "other"),
		"expired":       sign(t, jwt.MapClaims{"user_id": "alice", "exp": time.Now().Add(-time.Hour).Unix()}, secret),
		"missing claim": sign(t, jwt.MapClaims{"exp": exp}, secret),
		"garbage":       "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := middleware.ParseUserID(token, secret)
			assert.Error(t, err)
		})
	}
}

func TestAuth_RequiresBearerToken(t *testing.T) {
	r := echoUser(middleware.Auth(secret))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"user_id": "alice"}, secret))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	r := echoUser(middleware.OptionalAuth(secret))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String(), "anonymous requests pass through as guests")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+sign(t, jwt.MapClaims{"user_id": "bob"}, secret), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=broken", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.GET("/ping", middleware.RateLimit(client, "wb:", 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Len(t, mr.Keys(), 1)
	assert.Contains(t, mr.Keys()[0], "wb:ratelimit:")
}
