// Package middleware file: internal/middleware/limiter.go
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterEntry 存储限制器和最后访问时间
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ============================================================================
//  请求速率限制器 (Request Rate Limiter)
// ============================================================================

// RateLimiter 管理全局与按 IP 的两级速率限制
type RateLimiter struct {
	globalLimiter *rate.Limiter

	ipLimiters map[string]*limiterEntry
	ipMu       sync.Mutex
	ipRate     rate.Limit
	ipBurst    int

	idleTTL time.Duration
}

// NewRateLimiter 创建限制器并启动后台清理，清理随 ctx 结束
func NewRateLimiter(ctx context.Context, globalRate float64, globalBurst int, ipRate float64, ipBurst int) *RateLimiter {
	rl := &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(globalRate), globalBurst),
		ipLimiters:    make(map[string]*limiterEntry),
		ipRate:        rate.Limit(ipRate),
		ipBurst:       ipBurst,
		idleTTL:       15 * time.Minute,
	}
	go rl.cleanupDaemon(ctx, 10*time.Minute)

	slog.Info("[Rate Limiter] 初始化完成",
		"global_rate", globalRate, "global_burst", globalBurst,
		"ip_rate", ipRate, "ip_burst", ipBurst)
	return rl
}

// cleanupDaemon 定期清理不活跃的IP条目
func (rl *RateLimiter) cleanupDaemon(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep(time.Now())
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.ipMu.Lock()
	defer rl.ipMu.Unlock()
	for ip, entry := range rl.ipLimiters {
		if now.Sub(entry.lastSeen) > rl.idleTTL {
			delete(rl.ipLimiters, ip)
		}
	}
}

// getLimiter 返回或创建指定IP的速率限制器
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.ipMu.Lock()
	defer rl.ipMu.Unlock()
	entry, exists := rl.ipLimiters[ip]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.ipLimiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Global 返回全局限制中间件
func (rl *RateLimiter) Global() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.globalLimiter.Allow() {
			errResp(c, http.StatusTooManyRequests, "系统繁忙，请稍后再试 (global limit)")
			return
		}
		c.Next()
	}
}

// PerIP 返回IP限制中间件
func (rl *RateLimiter) PerIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			errResp(c, http.StatusTooManyRequests, "您的请求过于频繁，请稍后再试 (per-ip limit)")
			return
		}
		c.Next()
	}
}

// Chain 依次应用全局与 IP 限制
func (rl *RateLimiter) Chain() []gin.HandlerFunc {
	return []gin.HandlerFunc{rl.Global(), rl.PerIP()}
}

// ============================================================================
//  失败计数与临时锁定 (Failure Counting & Temporary Lockout)
// ============================================================================

// LoginFailureLock 在连续登录失败后临时锁定 (IP, 用户名) 组合
type LoginFailureLock struct {
	failureCache    *cache.Cache
	maxFailures     int
	lockoutDuration time.Duration
}

// NewLoginFailureLock 创建一个新的登录失败锁定器
func NewLoginFailureLock(maxFailures int, lockoutDuration time.Duration) *LoginFailureLock {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &LoginFailureLock{
		failureCache:    cache.New(5*time.Minute, 10*time.Minute),
		maxFailures:     maxFailures,
		lockoutDuration: lockoutDuration,
	}
}

// Middleware 包裹登录处理器 (JSON 接口或页面表单)；请求体读取后会原样放回供处理器绑定
func (l *LoginFailureLock) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			errResp(c, http.StatusBadRequest, "读取请求体失败: "+err.Error())
			return
		}
		_ = c.Request.Body.Close()
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		username := loginUsername(c.ContentType(), bodyBytes)
		ip := c.ClientIP()
		lockKey := "lock:" + ip + ":" + username
		failureKey := "failures:" + ip + ":" + username

		if _, found := l.failureCache.Get(lockKey); found {
			slog.Warn("[Login Lock] 已锁定的账户再次尝试登录", "user", username, "ip", ip)
			errResp(c, http.StatusUnauthorized, "用户名或密码无效")
			return
		}

		c.Next()

		switch c.Writer.Status() {
		case http.StatusUnauthorized:
			if err := l.failureCache.Increment(failureKey, int64(1)); err != nil {
				l.failureCache.Set(failureKey, int64(1), cache.DefaultExpiration)
			}
			var currentFailures int
			if x, found := l.failureCache.Get(failureKey); found {
				currentFailures = int(x.(int64))
			}
			slog.Info("[Login Failure] 登录失败", "user", username, "ip", ip, "failures", currentFailures)

			if currentFailures >= l.maxFailures {
				l.failureCache.Set(lockKey, true, l.lockoutDuration)
				l.failureCache.Delete(failureKey)
				slog.Warn("[Login Lock] 账户已被临时锁定", "user", username, "ip", ip, "duration", l.lockoutDuration)
			}
		case http.StatusOK, http.StatusSeeOther:
			l.failureCache.Delete(failureKey)
		}
	}
}

// loginUsername 从 JSON 或表单请求体中取出用户名
func loginUsername(contentType string, body []byte) string {
	if contentType == gin.MIMEPOSTForm {
		values, _ := url.ParseQuery(string(body))
		return strings.TrimSpace(values.Get("username"))
	}
	var extractor struct {
		Username string `json:"username"`
	}
	_ = json.Unmarshal(body, &extractor)
	return strings.TrimSpace(extractor.Username)
}

// errResp 以 JSON 写出错误并终止后续处理器
func errResp(c *gin.Context, code int, msg string) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
