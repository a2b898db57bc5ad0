// Package model 定义租赁平台的核心数据模型
//
// 包含用户（User）、房东档案（Owner）、租客档案（Tenant）、
// 房源（Apartment）和租赁申请（Application）以及它们的校验规则和派生字段。
package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// EmailPattern 邮箱格式
var EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidationError 字段校验错误
//
// 由各模型的 Validate 方法返回，HTTP 层统一映射为 400。
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NewID 生成带前缀的实体 ID，如 "apt-1a2b3c4d5e6f"
func NewID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

// NormalizeEmail 统一邮箱格式（去空白、小写）
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ============================================================================
// Address - 地址（内嵌）
// ============================================================================

// DefaultCountry 地址默认国家
const DefaultCountry = "USA"

// Address 地址
type Address struct {
	Street  string `json:"street" bson:"street"`
	City    string `json:"city" bson:"city"`
	State   string `json:"state" bson:"state"`
	ZipCode string `json:"zipCode" bson:"zip_code"`
	Country string `json:"country" bson:"country"`
}

// Normalize 去除首尾空白并补全默认国家
func (a *Address) Normalize() {
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = DefaultCountry
	}
}

// Full 返回完整地址字符串
func (a Address) Full() string {
	return fmt.Sprintf("%s, %s, %s %s, %s", a.Street, a.City, a.State, a.ZipCode, a.Country)
}

// IsZero 地址是否为空
func (a Address) IsZero() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.ZipCode == ""
}

func (a Address) validateRequired(prefix string) error {
	switch {
	case a.Street == "":
		return invalid(prefix+".street", "street address is required")
	case a.City == "":
		return invalid(prefix+".city", "city is required")
	case a.State == "":
		return invalid(prefix+".state", "state is required")
	case a.ZipCode == "":
		return invalid(prefix+".zipCode", "zip code is required")
	}
	return nil
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
