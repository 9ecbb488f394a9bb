package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exam-runner/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequireJWT(t *testing.T) {
	auth := service.NewAuthService("secret")
	tok, err := auth.GenerateToken(7, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, "%d %s", GetClaims(c).UserID, GetToken(c))
	})

	cases := map[string]struct {
		header string
		status int
	}{
		"valid":   {header: "Bearer " + tok, status: http.StatusOK},
		"missing": {header: "", status: http.StatusUnauthorized},
		"invalid": {header: "Bearer nope", status: http.StatusUnauthorized},
		"basic":   {header: "Basic " + tok, status: http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "7 "+tok, w.Body.String())
			}
		})
	}
}

func TestRateLimiterPerUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 2, time.Minute)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("user:1"))
	assert.True(t, rl.allow("user:1"))
	assert.False(t, rl.allow("user:1"))
	assert.True(t, rl.allow("user:2"))

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("user:1"))
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	body := strings.Repeat("transition altitude ", 200)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, body) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/", NoStore(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
