// file: internal/ui/session.go
package ui

import (
	"ClickFlow/internal/service"
	"ClickFlow/pkg/ingestclient"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const sessionCookie = "clickflow_session"

// Authenticator 校验页面登录并解析会话令牌，由 service.AuthService 实现
type Authenticator interface {
	Enabled() bool
	Login(username, password string) (string, error)
	ParseToken(token string) (*service.Claim, error)
}

var _ Authenticator = (*service.AuthService)(nil)

func (h *Handler) authEnabled() bool {
	return h.auth != nil && h.auth.Enabled()
}

// RequireSession 校验会话 Cookie，并把其中的 API 令牌放入请求上下文，
// 页面对后端的调用因此以当前登录用户的身份进行
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authEnabled() {
			c.Next()
			return
		}
		if token, err := c.Cookie(sessionCookie); err == nil && token != "" {
			if _, err := h.auth.ParseToken(token); err == nil {
				c.Request = c.Request.WithContext(ingestclient.ContextWithToken(c.Request.Context(), token))
				c.Next()
				return
			}
			clearSession(c.Writer)
		}
		c.Abort()
		if c.Request.Method == http.MethodGet {
			c.Redirect(http.StatusSeeOther, routeLogin)
			return
		}
		renderHTML(c.Writer, http.StatusUnauthorized, loginPage("", "Session expired, please sign in again"))
	}
}

func (h *Handler) LoginPage(w http.ResponseWriter, _ *http.Request) {
	renderHTML(w, http.StatusOK, loginPage("", ""))
}

// Login 校验表单中的账户，成功后写入会话 Cookie 并回到主页面
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "无法解析表单数据: "+err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	token, err := h.auth.Login(username, r.PostForm.Get("password"))
	if err != nil {
		slog.Info("页面登录失败", "user", username)
		renderHTML(w, http.StatusUnauthorized, loginPage(username, "Invalid username or password"))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	slog.Info("页面登录成功", "user", username)
	http.Redirect(w, r, routeIndex, http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	http.Redirect(w, r, routeLogin, http.StatusSeeOther)
}

func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
