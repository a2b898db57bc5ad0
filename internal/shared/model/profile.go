package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Contact 档案通用联系信息
//
// Owner 与 Tenant 共享，内嵌时 bson 展开（inline），JSON 同样展开。
type Contact struct {
	FirstName    string  `json:"firstName" bson:"first_name"`
	LastName     string  `json:"lastName" bson:"last_name"`
	Email        string  `json:"email" bson:"email"`
	Phone        string  `json:"phone" bson:"phone"`
	Address      Address `json:"address" bson:"address"`
	ProfileImage string  `json:"profileImage,omitempty" bson:"profile_image,omitempty"`
	UserID       string  `json:"userId" bson:"user_id"`
}

// FullName 全名
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c *Contact) normalize() {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = NormalizeEmail(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	if !c.Address.IsZero() {
		c.Address.Normalize()
	}
}

func (c Contact) validate() error {
	switch {
	case c.FirstName == "":
		return invalid("firstName", "first name is required")
	case len(c.FirstName) > 50:
		return invalid("firstName", "first name cannot exceed 50 characters")
	case c.LastName == "":
		return invalid("lastName", "last name is required")
	case len(c.LastName) > 50:
		return invalid("lastName", "last name cannot exceed 50 characters")
	case c.Email == "":
		return invalid("email", "email is required")
	case !EmailPattern.MatchString(c.Email):
		return invalid("email", "please enter a valid email")
	case c.Phone == "":
		return invalid("phone", "phone number is required")
	}
	return nil
}

// ============================================================================
// Owner - 房东档案
// ============================================================================

// OwnerStatus 房东档案状态
type OwnerStatus string

const (
	OwnerStatusActive    OwnerStatus = "active"
	OwnerStatusInactive  OwnerStatus = "inactive"
	OwnerStatusPending   OwnerStatus = "pending"
	OwnerStatusSuspended OwnerStatus = "suspended"
)

// OwnerStatuses 全部房东状态（统计用）
var OwnerStatuses = []OwnerStatus{OwnerStatusActive, OwnerStatusInactive, OwnerStatusPending, OwnerStatusSuspended}

// BusinessInfo 房东经营信息
type BusinessInfo struct {
	BusinessName  string `json:"businessName,omitempty" bson:"business_name,omitempty"`
	BusinessType  string `json:"businessType,omitempty" bson:"business_type,omitempty"` // individual / company / partnership
	TaxID         string `json:"taxId,omitempty" bson:"tax_id,omitempty"`
	LicenseNumber string `json:"licenseNumber,omitempty" bson:"license_number,omitempty"`
}

// Owner 房东档案，与 User 一对一
type Owner struct {
	ID           string `json:"id" bson:"_id"`
	Contact      `bson:",inline"`
	BusinessInfo *BusinessInfo `json:"businessInfo,omitempty" bson:"business_info,omitempty"`
	Status       OwnerStatus   `json:"status" bson:"status"`
	CreatedAt    time.Time     `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time     `json:"updatedAt" bson:"updated_at"`
}

// DisplayName 优先显示商户名
func (o *Owner) DisplayName() string {
	if o.BusinessInfo != nil && o.BusinessInfo.BusinessName != "" {
		return o.BusinessInfo.BusinessName
	}
	return o.FullName()
}

// Normalize 规范化字段并补全默认值
func (o *Owner) Normalize() {
	o.Contact.normalize()
	if o.Status == "" {
		o.Status = OwnerStatusActive
	}
	if o.BusinessInfo != nil {
		o.BusinessInfo.BusinessName = strings.TrimSpace(o.BusinessInfo.BusinessName)
	}
}

// Validate 校验房东档案
func (o *Owner) Validate() error {
	if err := o.Contact.validate(); err != nil {
		return err
	}
	if !contains(OwnerStatuses, o.Status) {
		return invalid("status", "unknown status %q", o.Status)
	}
	if o.BusinessInfo != nil {
		switch o.BusinessInfo.BusinessType {
		case "", "individual", "company", "partnership":
		default:
			return invalid("businessInfo.businessType", "unknown business type %q", o.BusinessInfo.BusinessType)
		}
	}
	return nil
}

// MarshalJSON 附带 fullName / displayName 派生字段
func (o Owner) MarshalJSON() ([]byte, error) {
	type alias Owner
	return json.Marshal(struct {
		alias
		FullName    string `json:"fullName"`
		DisplayName string `json:"displayName"`
	}{alias(o), o.FullName(), o.DisplayName()})
}

// ============================================================================
// Tenant - 租客档案
// ============================================================================

// TenantStatus 租客档案状态
type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
	TenantStatusPending  TenantStatus = "pending"
)

// TenantStatuses 全部租客状态
var TenantStatuses = []TenantStatus{TenantStatusActive, TenantStatusInactive, TenantStatusPending}

// EmergencyContact 紧急联系人
type EmergencyContact struct {
	Name         string `json:"name,omitempty" bson:"name,omitempty"`
	Phone        string `json:"phone,omitempty" bson:"phone,omitempty"`
	Relationship string `json:"relationship,omitempty" bson:"relationship,omitempty"`
}

// Tenant 租客档案，与 User 一对一
type Tenant struct {
	ID               string `json:"id" bson:"_id"`
	Contact          `bson:",inline"`
	DateOfBirth      *time.Time        `json:"dateOfBirth,omitempty" bson:"date_of_birth,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty" bson:"emergency_contact,omitempty"`
	Status           TenantStatus      `json:"status" bson:"status"`
	CreatedAt        time.Time         `json:"createdAt" bson:"created_at"`
	UpdatedAt        time.Time         `json:"updatedAt" bson:"updated_at"`
}

// Age 按出生日期计算周岁，未知时返回 0
func (t *Tenant) Age(now time.Time) int {
	if t.DateOfBirth == nil {
		return 0
	}
	dob := *t.DateOfBirth
	age := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// Normalize 规范化字段并补全默认值
func (t *Tenant) Normalize() {
	t.Contact.normalize()
	if t.Status == "" {
		t.Status = TenantStatusActive
	}
}

// Validate 校验租客档案
func (t *Tenant) Validate() error {
	if err := t.Contact.validate(); err != nil {
		return err
	}
	if !contains(TenantStatuses, t.Status) {
		return invalid("status", "unknown status %q", t.Status)
	}
	if t.DateOfBirth != nil && t.DateOfBirth.After(time.Now()) {
		return invalid("dateOfBirth", "date of birth cannot be in the future")
	}
	return nil
}

// MarshalJSON 附带 fullName / age 派生字段
func (t Tenant) MarshalJSON() ([]byte, error) {
	type alias Tenant
	out := struct {
		alias
		FullName string `json:"fullName"`
		Age      int    `json:"age,omitempty"`
	}{alias: alias(t), FullName: t.FullName()}
	out.Age = t.Age(time.Now())
	return json.Marshal(out)
}
