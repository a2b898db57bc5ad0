package model

import (
	"time"
)

// Role 用户角色
type Role string

const (
	RoleTenant     Role = "tenant"
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleStaff      Role = "staff"
	RoleSuperAdmin Role = "superadmin"
)

// ValidRole 判断角色是否合法
func ValidRole(r Role) bool {
	switch r {
	case RoleTenant, RoleOwner, RoleAdmin, RoleStaff, RoleSuperAdmin:
		return true
	}
	return false
}

// UserStatus 用户状态
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusApproved UserStatus = "approved"
	UserStatusBlocked  UserStatus = "blocked"
	UserStatusDeclined UserStatus = "declined"
	UserStatusHold     UserStatus = "hold"
)

// MinPasswordLength 密码最短长度
const MinPasswordLength = 6

// ValidUserStatus 判断用户状态是否合法
func ValidUserStatus(s UserStatus) bool {
	switch s {
	case UserStatusPending, UserStatusApproved, UserStatusBlocked, UserStatusDeclined, UserStatusHold:
		return true
	}
	return false
}

// AuthType 账户注册方式
type AuthType string

const (
	AuthTypeStandard AuthType = "standard"
	AuthTypeGoogle   AuthType = "google"
	AuthTypeFacebook AuthType = "facebook"
)

// User 用户账户
type User struct {
	ID                string     `json:"id" bson:"_id" db:"id"`
	Email             string     `json:"email" bson:"email" db:"email"`
	PasswordHash      string     `json:"-" bson:"password_hash" db:"password_hash"` // never expose in JSON
	AuthType          AuthType   `json:"authType" bson:"auth_type" db:"auth_type"`
	EmailVerified     bool       `json:"emailVerified" bson:"email_verified" db:"email_verified"`
	Onboarding        bool       `json:"onboarding" bson:"onboarding" db:"onboarding"`
	Roles             []Role     `json:"roles" bson:"roles" db:"roles"`
	Permissions       []string   `json:"permissions" bson:"permissions" db:"permissions"`
	Status            UserStatus `json:"status" bson:"status" db:"status"`
	PasswordChangedAt *time.Time `json:"passwordChangedAt,omitempty" bson:"password_changed_at,omitempty" db:"password_changed_at"`
	LastLoggedIn      *time.Time `json:"lastLoggedIn,omitempty" bson:"last_logged_in,omitempty" db:"last_logged_in"`
	CreatedAt         time.Time  `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// HasRole 用户是否拥有任一角色（不含 superadmin 豁免）
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if contains(u.Roles, r) {
			return true
		}
	}
	return false
}

// IsSuperAdmin 是否超级管理员
func (u *User) IsSuperAdmin() bool {
	return contains(u.Roles, RoleSuperAdmin)
}

// IsStaff 是否为管理员或员工（superadmin 视为管理员）
func (u *User) IsStaff() bool {
	return u.IsSuperAdmin() || u.HasRole(RoleAdmin, RoleStaff)
}

// IsAdmin 是否为管理员（superadmin 视为管理员）
func (u *User) IsAdmin() bool {
	return u.IsSuperAdmin() || u.HasRole(RoleAdmin)
}

// CanAuthenticate 当前状态是否允许访问受保护资源
//
// blocked / pending / declined 一律拒绝，即使令牌合法。
func (u *User) CanAuthenticate() bool {
	switch u.Status {
	case UserStatusBlocked, UserStatusPending, UserStatusDeclined:
		return false
	}
	return true
}

// Validate 校验用户字段
func (u *User) Validate() error {
	if u.Email == "" {
		return invalid("email", "email is required")
	}
	if !EmailPattern.MatchString(u.Email) {
		return invalid("email", "invalid email format")
	}
	if len(u.Roles) == 0 {
		return invalid("roles", "at least one role is required")
	}
	for _, r := range u.Roles {
		if !ValidRole(r) {
			return invalid("roles", "unknown role %q", r)
		}
	}
	if !ValidUserStatus(u.Status) {
		return invalid("status", "unknown status %q", u.Status)
	}
	switch u.AuthType {
	case AuthTypeStandard, AuthTypeGoogle, AuthTypeFacebook:
	default:
		return invalid("authType", "unknown auth type %q", u.AuthType)
	}
	return nil
}

// ApplyDefaults 补全默认值
func (u *User) ApplyDefaults() {
	u.Email = NormalizeEmail(u.Email)
	if u.AuthType == "" {
		u.AuthType = AuthTypeStandard
	}
	if u.Status == "" {
		u.Status = UserStatusPending
	}
	if len(u.Roles) == 0 {
		u.Roles = []Role{RoleTenant}
	}
	if u.Permissions == nil {
		u.Permissions = []string{}
	}
}
