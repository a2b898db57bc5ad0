// Package cache 缓存层类型定义
package cache

import (
	"time"
)

// ============================================================================
// 缓存数据类型
// ============================================================================

// Session 刷新令牌会话
type Session struct {
	ID        string    `json:"id"` // 刷新令牌 jti
	UserID    string    `json:"user_id"`
	UserAgent string    `json:"user_agent,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TTL 距过期的剩余时间（已过期时为 0）
func (s *Session) TTL(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ============================================================================
// Key 前缀
// ============================================================================

const (
	KeySession      = "session:"
	KeyUserSessions = "user_sessions:"
)
