package cache

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"
)

// Memory 进程内会话缓存（单实例部署或未配置 Redis 时使用）
type Memory struct {
	sessions *ccache.Cache[*Session]
}

// NewMemory 创建进程内缓存，maxSessions 为最大会话数（LRU 淘汰）
func NewMemory(maxSessions int64) *Memory {
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	return &Memory{
		sessions: ccache.New(ccache.Configure[*Session]().MaxSize(maxSessions)),
	}
}

func (m *Memory) SaveSession(ctx context.Context, session *Session) error {
	ttl := session.TTL(time.Now())
	if ttl == 0 {
		return nil
	}
	cp := *session
	m.sessions.Set(KeySession+session.ID, &cp, ttl)
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*Session, error) {
	item := m.sessions.Get(KeySession + id)
	if item == nil || item.Expired() {
		return nil, nil
	}
	cp := *item.Value()
	return &cp, nil
}

func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	m.sessions.Delete(KeySession + id)
	return nil
}

func (m *Memory) DeleteUserSessions(ctx context.Context, userID string) error {
	m.sessions.DeleteFunc(func(key string, item *ccache.Item[*Session]) bool {
		return item.Value().UserID == userID
	})
	return nil
}

// Close 停止 ccache 后台 goroutine
func (m *Memory) Close() error {
	m.sessions.Stop()
	return nil
}

// 确保 Memory 实现了 Cache 接口
var _ Cache = (*Memory)(nil)
