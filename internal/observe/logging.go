// Package observe file: internal/observe/logging.go
package observe

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel 把配置里的级别字符串转换为 slog.Level，未知值按 INFO 处理
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger 创建一个 JSON 格式、带源码位置的结构化 logger
func NewLogger(w io.Writer, levelStr string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(levelStr),
		AddSource: true,
	})
	return slog.New(handler)
}

// InitLogger 初始化全局的结构化日志记录器，应在 main 的早期调用。
func InitLogger(levelStr string) {
	slog.SetDefault(NewLogger(os.Stdout, levelStr))
}
