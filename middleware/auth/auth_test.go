package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/middleware/jwt"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

func newRouter(tm *jwt.TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(tm), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  UserID(c),
			"username": c.GetString(UsernameKey),
			"ctx_user": logger.GetUserID(c.Request.Context()),
		})
	})
	return r
}

func TestMiddleware(t *testing.T) {
	tm := jwt.NewTokenManager(&config.JWTConfig{Secret: "s3cret", ExpireHours: 1})
	r := newRouter(tm)
	token, err := tm.Issue("u-7", "grace")
	require.NoError(t, err)

	cases := []struct {
		name   string
		setup  func(req *http.Request)
		status int
	}{
		{"header", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"lowercase scheme", func(req *http.Request) { req.Header.Set("Authorization", "bearer "+token) }, http.StatusOK},
		{"query", func(req *http.Request) { req.URL.RawQuery = "token=" + token }, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"basic auth", func(req *http.Request) { req.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized},
		{"bad header wins over query", func(req *http.Request) {
			req.Header.Set("Authorization", "Token "+token)
			req.URL.RawQuery = "token=" + token
		}, http.StatusUnauthorized},
		{"garbage", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":"u-7","username":"grace","ctx_user":"u-7"}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"code":"unauthenticated"`)
			}
		})
	}
}
