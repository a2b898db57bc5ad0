// Package cache 缓存层抽象接口
//
// 提供临时状态的存取能力：Redis 实现（cache/redis）用于多实例部署，
// 进程内实现（Memory，基于 ccache）用于单实例与测试。
package cache

import (
	"context"
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// SessionCache 刷新令牌会话登记表
//
// 每个刷新令牌的 jti 登记为一个会话；登出或管理员封禁时撤销。
// GetSession 在会话不存在或已过期时返回 (nil, nil)。
type SessionCache interface {
	SaveSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

// ============================================================================
// 组合接口
// ============================================================================

// Cache 缓存组合接口
type Cache interface {
	SessionCache
	Close() error
}
