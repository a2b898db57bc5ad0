package eventbus

import (
	"context"
	"sync"
)

// Memory 进程内事件总线
//
// 保留最近 MaxStreamLength 条事件；订阅者 channel 满时丢弃事件，不阻塞发布方。
type Memory struct {
	mu     sync.RWMutex
	recent []*Event
	subs   map[chan *Event]struct{}
	closed bool
}

// NewMemory 创建进程内事件总线
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan *Event]struct{})}
}

func (m *Memory) Publish(ctx context.Context, event *Event) error {
	event.Fill()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.recent = append(m.recent, event)
	if len(m.recent) > MaxStreamLength {
		m.recent = m.recent[len(m.recent)-MaxStreamLength:]
	}
	for ch := range m.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (m *Memory) Recent(ctx context.Context, count int64) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := int64(len(m.recent))
	if count <= 0 || count > n {
		count = n
	}
	out := make([]*Event, 0, count)
	for i := n - 1; i >= n-count; i-- {
		out = append(out, m.recent[i])
	}
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan *Event, error) {
	ch := make(chan *Event, 100)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, nil
	}
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

// Close 关闭所有订阅
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	return nil
}

// 确保 Memory 实现了 EventBus 接口
var _ EventBus = (*Memory)(nil)
