// Package eventbus 事件总线类型定义
package eventbus

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

const (
	EventApplicationCreated   = "application.created"
	EventApplicationReviewed  = "application.reviewed"
	EventApplicationWithdrawn = "application.withdrawn"
	EventApartmentRented      = "apartment.rented"
	EventUserStatusChanged    = "user.status_changed"
)

// Event 领域事件
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Audience  []string       `json:"audience,omitempty"` // 相关用户 ID
	Data      map[string]any `json:"data,omitempty"`
}

// VisibleTo 事件是否推送给指定用户
func (e *Event) VisibleTo(userID string) bool {
	return slices.Contains(e.Audience, userID)
}

// Fill 补全 ID 与时间戳
func (e *Event) Fill() {
	if e.ID == "" {
		b := make([]byte, 6)
		rand.Read(b)
		e.ID = "evt-" + hex.EncodeToString(b)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	KeyDomainEvents = "domain_events"

	// Stream 最大长度
	MaxStreamLength = 1000
)
