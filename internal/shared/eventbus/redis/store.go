// Package redis 领域事件总线的 Redis Streams 实现
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"rental-admin/internal/shared/eventbus"
)

// Store Redis 事件总线
type Store struct {
	client *redis.Client
	stream string
}

// 确保 Store 实现了 eventbus.EventBus 接口
var _ eventbus.EventBus = (*Store)(nil)

// NewStoreFromClient 从现有 Redis 客户端创建事件总线
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client, stream: eventbus.KeyDomainEvents}
}

// Close 事件总线不持有连接，由 infra 统一关闭
func (s *Store) Close() error {
	return nil
}

// Publish 发布领域事件
func (s *Store) Publish(ctx context.Context, event *eventbus.Event) error {
	event.Fill()

	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	audienceJSON, err := json.Marshal(event.Audience)
	if err != nil {
		return fmt.Errorf("failed to marshal event audience: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"id":        event.ID,
			"type":      event.Type,
			"timestamp": event.Timestamp.Format(time.RFC3339Nano),
			"audience":  string(audienceJSON),
			"data":      string(dataJSON),
		},
	}

	seq, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Printf("[redis/eventbus] Published event: seq=%s type=%s id=%s", seq, event.Type, event.ID)
	return nil
}

// Recent 按时间倒序获取最近的事件
func (s *Store) Recent(ctx context.Context, count int64) ([]*eventbus.Event, error) {
	if count <= 0 {
		count = eventbus.MaxStreamLength
	}
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	events := make([]*eventbus.Event, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, decodeMessage(msg))
	}
	return events, nil
}

// Subscribe 订阅新事件（从订阅时刻开始）
func (s *Store) Subscribe(ctx context.Context) (<-chan *eventbus.Event, error) {
	ch := make(chan *eventbus.Event, 100)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{s.stream, lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()

			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if ctx.Err() == nil {
					log.Printf("[redis/eventbus] Event subscription error: %v", err)
				}
				return
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					select {
					case ch <- decodeMessage(msg):
						lastID = msg.ID
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// decodeMessage 将 stream 消息还原为事件，缺失字段保持零值
func decodeMessage(msg redis.XMessage) *eventbus.Event {
	event := &eventbus.Event{ID: msg.ID}
	if id, ok := msg.Values["id"].(string); ok && id != "" {
		event.ID = id
	}
	event.Type, _ = msg.Values["type"].(string)

	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
	}
	if s, ok := msg.Values["audience"].(string); ok {
		_ = json.Unmarshal([]byte(s), &event.Audience)
	}
	if s, ok := msg.Values["data"].(string); ok {
		_ = json.Unmarshal([]byte(s), &event.Data)
	}
	return event
}
