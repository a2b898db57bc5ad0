// Package eventbus 事件总线抽象接口
//
// 提供领域事件的发布/订阅能力：Redis Streams 实现（eventbus/redis）用于多实例部署，
// 进程内实现（Memory）用于单实例与测试。
package eventbus

import (
	"context"
	"log"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// EventBus 领域事件总线
type EventBus interface {
	// Publish 发布事件，ID 和 Timestamp 为空时由实现填充
	Publish(ctx context.Context, event *Event) error
	// Recent 按时间倒序返回最近 count 条事件
	Recent(ctx context.Context, count int64) ([]*Event, error)
	// Subscribe 订阅之后发布的事件，ctx 取消时关闭返回的 channel
	Subscribe(ctx context.Context) (<-chan *Event, error)
	Close() error
}

// Emit 发布事件，失败只记录日志
//
// 事件是业务写入的附带通知，发布失败不影响已提交的写操作。bus 为 nil 时忽略。
func Emit(ctx context.Context, bus EventBus, event *Event) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, event); err != nil {
		log.Printf("[eventbus] publish %s error: %v", event.Type, err)
	}
}
