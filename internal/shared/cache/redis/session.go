package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rental-admin/internal/shared/cache"
)

// ============================================================================
// 会话登记
// ============================================================================
//
// session:{jti}           -> Session JSON，TTL 与刷新令牌一致
// user_sessions:{userID}  -> SET{jti}，用于按用户批量撤销

func (s *Store) SaveSession(ctx context.Context, session *cache.Session) error {
	ttl := session.TTL(time.Now())
	if ttl == 0 {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	indexKey := cache.KeyUserSessions + session.UserID
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, cache.KeySession+session.ID, data, ttl)
	pipe.SAdd(ctx, indexKey, session.ID)
	// 刷新令牌 TTL 固定，最新会话即最晚过期
	pipe.Expire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*cache.Session, error) {
	data, err := s.client.Get(ctx, cache.KeySession+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session cache.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, cache.KeySession+id)
	if session != nil {
		pipe.SRem(ctx, cache.KeyUserSessions+session.UserID, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	indexKey := cache.KeyUserSessions + userID
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, cache.KeySession+id)
	}
	keys = append(keys, indexKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}
