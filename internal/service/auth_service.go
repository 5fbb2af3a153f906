// Package service file: internal/service/auth_service.go
// API 账户校验 (bcrypt) 与 JWT 签发/解析
package service

import (
	"ClickFlow/internal/config"
	"ClickFlow/internal/core/port"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "ClickFlow"

// ErrInvalidToken 表示 JWT 无效、过期或解析失败。
var ErrInvalidToken = errors.New("invalid or expired token")

// Claim 定义 API 令牌的载荷结构
type Claim struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService 使用配置文件中的账户签发和校验令牌
type AuthService struct {
	enabled bool
	hmacKey []byte
	ttl     time.Duration
	users   map[string]config.UserConfig
	now     func() time.Time
}

// NewAuthService 根据配置创建 AuthService
func NewAuthService(cfg config.AuthConfig) *AuthService {
	users := make(map[string]config.UserConfig, len(cfg.Users))
	for _, u := range cfg.Users {
		if u.Role == "" {
			u.Role = "user"
		}
		users[u.Username] = u
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if cfg.Enabled && len(users) == 0 {
		slog.Warn("已启用 API 鉴权但未配置任何账户，所有受保护接口都将拒绝访问")
	}
	return &AuthService{
		enabled: cfg.Enabled,
		hmacKey: []byte(cfg.JWTSecret),
		ttl:     ttl,
		users:   users,
		now:     time.Now,
	}
}

// Enabled 报告是否需要鉴权
func (a *AuthService) Enabled() bool { return a.enabled }

// HashPassword 生成可写入配置文件的 bcrypt 哈希
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("密码不能为空")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("生成密码哈希失败: %w", err)
	}
	return string(hash), nil
}

// Login 校验用户名和密码，成功则返回签名后的令牌
func (a *AuthService) Login(username, password string) (string, error) {
	u, ok := a.users[username]
	if !ok {
		return "", port.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", port.ErrUnauthorized
	}
	return a.GenToken(u.Username, u.Role)
}

// GenToken 签发一个 HS256 令牌
func (a *AuthService) GenToken(username, role string) (string, error) {
	now := a.now()
	claims := Claim{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.hmacKey)
	if err != nil {
		return "", fmt.Errorf("签名 JWT 失败: %w", err)
	}
	return signed, nil
}

// ParseToken 解析并验证令牌，且要求用户仍存在于配置中
func (a *AuthService) ParseToken(tokenString string) (*Claim, error) {
	claims := &Claim{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名方法: %v", token.Header["alg"])
		}
		return a.hmacKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, jwt.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w (detail: %v)", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, ok := a.users[claims.Username]; !ok {
		return nil, fmt.Errorf("%w: 用户 %q 不存在", ErrInvalidToken, claims.Username)
	}
	return claims, nil
}
