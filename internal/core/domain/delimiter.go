// Package domain file: internal/core/domain/delimiter.go
package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultDelimiter 在请求未提供分隔符时使用
const DefaultDelimiter = ','

// ErrInvalidDelimiter 表示分隔符不是单个合法字符
var ErrInvalidDelimiter = errors.New("invalid delimiter")

// ParseDelimiter 把界面/接口传入的分隔符文本解析为单个 rune。
// 空串取默认逗号；"\t" 与 "tab" 表示制表符。
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return DefaultDelimiter, nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: %q must be a single character", ErrInvalidDelimiter, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("%w: %q is not allowed", ErrInvalidDelimiter, s)
	}
	return r, nil
}
