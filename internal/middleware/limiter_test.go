// file: internal/middleware/limiter_test.go
package middleware_test

import (
	"ClickFlow/internal/config"
	"ClickFlow/internal/middleware"
	"ClickFlow/internal/service"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(c *gin.Context) { c.String(http.StatusOK, "OK") }

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Any("/*path", append(handlers, okHandler)...)
	return r
}

func TestRateLimiter_Global(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := middleware.NewRateLimiter(ctx, 1, 1, 100, 100)
	r := newEngine(limiter.Global())

	rr1 := httptest.NewRecorder()
	r.ServeHTTP(rr1, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rr1.Code, "第一次请求应被允许")

	rr2 := httptest.NewRecorder()
	r.ServeHTTP(rr2, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr2.Code, "第二次请求应被全局限制拦截")
	assert.Contains(t, rr2.Body.String(), "global limit")
}

func TestRateLimiter_PerIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := middleware.NewRateLimiter(ctx, 100, 100, 1, 1)
	r := newEngine(limiter.Chain()...)

	t.Run("should block second request from same IP", func(t *testing.T) {
		req1 := httptest.NewRequest("GET", "/", nil)
		req1.RemoteAddr = "192.0.2.1:12345"
		rr1 := httptest.NewRecorder()
		r.ServeHTTP(rr1, req1)
		require.Equal(t, http.StatusOK, rr1.Code)

		req2 := httptest.NewRequest("GET", "/", nil)
		req2.RemoteAddr = "192.0.2.1:12345"
		rr2 := httptest.NewRecorder()
		r.ServeHTTP(rr2, req2)
		assert.Equal(t, http.StatusTooManyRequests, rr2.Code)
	})

	t.Run("should not affect requests from a different IP", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.0.2.2:54321"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("should ignore X-Forwarded-For from untrusted peers", func(t *testing.T) {
		for i, spoofed := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "192.0.2.3:4000"
			req.Header.Set("X-Forwarded-For", spoofed)
			req.Header.Set("X-Real-IP", spoofed)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if i == 0 {
				assert.Equal(t, http.StatusOK, rr.Code)
				continue
			}
			assert.Equal(t, http.StatusTooManyRequests, rr.Code, "伪造的转发头不应重置限流桶 (request %d)", i+1)
		}
	})
}

func TestRateLimiter_PerIP_TrustedProxy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := middleware.NewRateLimiter(ctx, 100, 100, 1, 1)
	r := gin.New()
	require.NoError(t, r.SetTrustedProxies([]string{"10.0.0.0/8"}))
	r.Any("/*path", limiter.PerIP(), okHandler)

	send := func(forwarded string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		req.Header.Set("X-Forwarded-For", forwarded+", 10.0.0.1")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.9"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.9"), "受信代理转发的客户端地址应被限流")
	assert.Equal(t, http.StatusOK, send("203.0.113.10"), "受信代理后的不同客户端互不影响")
}

func TestLoginFailureLock(t *testing.T) {
	lock := middleware.NewLoginFailureLock(2, time.Minute)
	r := gin.New()
	r.POST("/login", lock.Middleware(), func(c *gin.Context) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		require.NoError(t, c.ShouldBindJSON(&body), "请求体应被放回供处理器读取")
		if body.Password != "right" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bad"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": "t"})
	})

	login := func(user, pw string) int {
		b, _ := json.Marshal(map[string]string{"username": user, "password": pw})
		req := httptest.NewRequest("POST", "/login", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.7:1000"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, login("alice", "right"))
	assert.Equal(t, http.StatusUnauthorized, login("alice", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, login("alice", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, login("alice", "right"), "锁定期间正确密码也应被拒绝")
	assert.Equal(t, http.StatusOK, login("bob", "right"), "其他账户不受影响")
}

func TestLoginFailureLock_FormLogin(t *testing.T) {
	lock := middleware.NewLoginFailureLock(2, time.Minute)
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.POST("/ui/login", lock.Middleware(), func(c *gin.Context) {
		if c.PostForm("password") != "right" {
			c.String(http.StatusUnauthorized, "bad")
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	})

	login := func(user, pw, forwarded string) int {
		form := url.Values{"username": {user}, "password": {pw}}
		req := httptest.NewRequest("POST", "/ui/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", forwarded)
		req.RemoteAddr = "192.0.2.8:1000"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusSeeOther, login("carol", "right", "198.51.100.1"))
	assert.Equal(t, http.StatusUnauthorized, login("carol", "wrong", "198.51.100.2"))
	assert.Equal(t, http.StatusUnauthorized, login("carol", "wrong", "198.51.100.3"))
	assert.Equal(t, http.StatusUnauthorized, login("carol", "right", "198.51.100.4"), "更换转发头不应绕过锁定")
}

func TestRequireAuth(t *testing.T) {
	hash, err := service.HashPassword("pw")
	require.NoError(t, err)
	auth := service.NewAuthService(config.AuthConfig{
		Enabled:   true,
		JWTSecret: "k",
		Users:     []config.UserConfig{{Username: "alice", PasswordHash: hash}},
	})
	r := gin.New()
	r.GET("/secure", middleware.RequireAuth(auth), func(c *gin.Context) {
		c.String(http.StatusOK, middleware.ClaimFrom(c).Username)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/secure", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest("GET", "/secure", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := auth.Login("alice", "pw")
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", rr.Body.String())
}

func TestRequireAuth_Disabled(t *testing.T) {
	r := gin.New()
	r.GET("/open", middleware.RequireAuth(service.NewAuthService(config.AuthConfig{})), okHandler)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/open", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
