// Package middleware file: internal/transport/http/middleware/error_handler.go
package middleware

import (
	"ClickFlow/internal/core/port"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Surface 描述错误应以何种形式返回给调用方
type Surface struct {
	// Prefix 拼接在错误消息前，例如 "Error fetching tables: "
	Prefix string
	// JSON 为 true 时返回 {"error": ...}，否则返回纯文本
	JSON bool
}

// Fail 把错误挂到上下文上并终止后续处理器，由 ErrorHandlingMiddleware 统一写出
func Fail(c *gin.Context, prefix string, err error) {
	_ = c.Error(err).SetMeta(Surface{Prefix: prefix})
	c.Abort()
}

// FailJSON 与 Fail 相同，但以 JSON 写出
func FailJSON(c *gin.Context, err error) {
	_ = c.Error(err).SetMeta(Surface{JSON: true})
	c.Abort()
}

// StatusFor 把业务错误映射为 HTTP 状态码
func StatusFor(err error) int {
	var (
		ve  validator.ValidationErrors
		se  *json.SyntaxError
		ute *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &se), errors.As(err, &ute):
		return http.StatusBadRequest
	case errors.Is(err, port.ErrInvalidSource),
		errors.Is(err, port.ErrInvalidDelimiter),
		errors.Is(err, port.ErrNoColumns),
		errors.Is(err, port.ErrColumnNotFound),
		errors.Is(err, port.ErrInvalidPath),
		errors.Is(err, port.ErrInvalidConnection),
		errors.Is(err, port.ErrJoinNeedsTables),
		errors.Is(err, port.ErrInvalidJoinCondition),
		errors.Is(err, port.ErrTableRequired),
		errors.Is(err, port.ErrFileRequired),
		errors.Is(err, port.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, port.ErrFileNotFound), errors.Is(err, port.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, port.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, port.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandlingMiddleware 是一个Gin中间件，用于集中处理错误。
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// 只处理最后一个错误
		lastError := c.Errors.Last()
		err := lastError.Err
		surface, _ := lastError.Meta.(Surface)
		if lastError.IsType(gin.ErrorTypeBind) && StatusFor(err) == http.StatusInternalServerError {
			// 绑定失败但不是已知的解析错误 (如空请求体) 也属于客户端错误
			writeError(c, http.StatusBadRequest, surface, err.Error())
			return
		}

		status := StatusFor(err)
		msg := err.Error()
		if errors.Is(err, port.ErrInvalidSource) {
			// 非法来源始终返回固定文本，不加前缀
			surface.Prefix = ""
			msg = port.ErrInvalidSource.Error()
		}
		if status >= http.StatusInternalServerError {
			slog.Error("请求处理失败", "method", c.Request.Method, "path", c.Request.URL.Path, "status", status, "error", err)
		}
		writeError(c, status, surface, msg)
	}
}

func writeError(c *gin.Context, status int, surface Surface, msg string) {
	if surface.JSON {
		c.JSON(status, gin.H{"error": surface.Prefix + msg})
		return
	}
	c.String(status, surface.Prefix+msg)
}
