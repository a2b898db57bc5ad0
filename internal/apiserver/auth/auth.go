// Package auth 用户认证：JWT 令牌管理、密码哈希、刷新会话、HTTP 中间件
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"rental-admin/internal/config"
	"rental-admin/internal/shared/model"
)

// contextKey context 键类型
type contextKey string

const ctxKeyUser contextKey = "auth_user"

// 令牌类型
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码，cost 超出范围时使用默认值
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// CheckPassword 验证密码
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewUser 构造带密码哈希的新用户（未持久化）
func NewUser(email, password string, role model.Role, status model.UserStatus, cost int) (*model.User, error) {
	hash, err := HashPassword(password, cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	u := &model.User{
		ID:           model.NewID("usr"),
		Email:        email,
		PasswordHash: hash,
		AuthType:     model.AuthTypeStandard,
		Roles:        []model.Role{role},
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	u.ApplyDefaults()
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// ============================================================================
// JWT Token
// ============================================================================

// Claims JWT 声明
type Claims struct {
	jwt.RegisteredClaims
	Email  string           `json:"email,omitempty"`
	Roles  []model.Role     `json:"roles,omitempty"`
	Status model.UserStatus `json:"status,omitempty"`
	Type   string           `json:"typ"`
}

// GenerateAccessToken 生成访问令牌
func GenerateAccessToken(cfg config.AuthConfig, u *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.AccessTokenTTL)),
		},
		Email:  u.Email,
		Roles:  u.Roles,
		Status: u.Status,
		Type:   TokenAccess,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// GenerateRefreshToken 生成刷新令牌，jti 为会话 ID
func GenerateRefreshToken(cfg config.AuthConfig, userID, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(cfg.RefreshTokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Type: TokenRefresh,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTRefreshSecret))
	return token, expires, err
}

// ParseAccessToken 解析并验证访问令牌
func ParseAccessToken(cfg config.AuthConfig, tokenString string) (*Claims, error) {
	return parseToken(cfg.JWTSecret, tokenString, TokenAccess)
}

// ParseRefreshToken 解析并验证刷新令牌
func ParseRefreshToken(cfg config.AuthConfig, tokenString string) (*Claims, error) {
	claims, err := parseToken(cfg.JWTRefreshSecret, tokenString, TokenRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("refresh token without session id")
	}
	return claims, nil
}

func parseToken(secret, tokenString, typ string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("unexpected token type %q", claims.Type)
	}
	if claims.Subject == "" {
		return nil, errors.New("token without subject")
	}
	return claims, nil
}

// newSessionID 生成刷新会话 ID
func newSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithUser 将认证用户注入 context
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

// CurrentUser 从 context 获取认证用户
func CurrentUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(ctxKeyUser).(*model.User)
	return user
}
