// Package httputil HTTP 处理器共用的响应信封、请求解码与查询参数绑定
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
)

// Envelope 统一响应结构
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// HTTPError 携带状态码的错误，由 FromError 原样输出
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewError 创建 HTTPError
func NewError(status int, format string, args ...any) *HTTPError {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// 常用错误
var (
	ErrUnauthorized = NewError(http.StatusUnauthorized, "Not authorized")
	ErrForbidden    = NewError(http.StatusForbidden, "Access denied")
)

// WriteJSON 输出任意 JSON
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[httputil] encode response error: %v", err)
	}
}

// Success 输出成功信封
func Success(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// Error 输出失败信封
func Error(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// FromError 将错误映射为状态码并输出失败信封
//
//	*HTTPError             → 自带状态码
//	*model.ValidationError → 400
//	storage.ErrNotFound    → 404
//	storage.ErrDuplicate   → 409
//	其他                    → 500（记录日志，不向客户端暴露细节）
func FromError(w http.ResponseWriter, op string, err error) {
	var he *HTTPError
	var ve *model.ValidationError
	switch {
	case errors.As(err, &he):
		Error(w, he.Status, he.Message)
	case errors.As(err, &ve):
		WriteJSON(w, http.StatusBadRequest, Envelope{Success: false, Message: ve.Error(), Data: ve})
	case errors.Is(err, storage.ErrNotFound):
		Error(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, storage.ErrDuplicate):
		Error(w, http.StatusConflict, "Resource already exists")
	default:
		log.Printf("[%s] error: %v", op, err)
		Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

// List 列表响应数据：{<key>: items, pagination}
func List(key string, items any, page storage.Page, total int64) map[string]any {
	return map[string]any{
		key:          items,
		"pagination": storage.NewPagination(page, total),
	}
}
