// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/（主存储）、repository/（SQLite / PostgreSQL）
//   - 初始化时通过依赖注入传入实现
//
// 约定：
//   - Get* 方法在实体不存在时返回 (nil, nil)
//   - Update* / Delete* 方法在实体不存在时返回 ErrNotFound
//   - 唯一约束冲突统一返回 ErrDuplicate
package storage

import (
	"context"
	"time"

	"rental-admin/internal/shared/model"
)

// ============================================================================
// 细粒度存储接口（按业务领域划分）
// ============================================================================

// UserStore 用户账户存储接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserEmail(ctx context.Context, id, email string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	UpdateUserStatus(ctx context.Context, id string, status model.UserStatus) error
	UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int64, error)
}

// OwnerStore 房东档案存储接口
type OwnerStore interface {
	CreateOwner(ctx context.Context, owner *model.Owner) error
	GetOwner(ctx context.Context, id string) (*model.Owner, error)
	GetOwnerByUserID(ctx context.Context, userID string) (*model.Owner, error)
	UpdateOwner(ctx context.Context, owner *model.Owner) error
	DeleteOwner(ctx context.Context, id string) error
	ListOwners(ctx context.Context, filter ProfileFilter) ([]*model.Owner, int64, error)
	CountOwnersByStatus(ctx context.Context) (map[string]int64, error)
}

// TenantStore 租客档案存储接口
type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *model.Tenant) error
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	GetTenantByUserID(ctx context.Context, userID string) (*model.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *model.Tenant) error
	DeleteTenant(ctx context.Context, id string) error
	ListTenants(ctx context.Context, filter ProfileFilter) ([]*model.Tenant, int64, error)
}

// ApartmentStore 房源存储接口
type ApartmentStore interface {
	CreateApartment(ctx context.Context, apt *model.Apartment) error
	GetApartment(ctx context.Context, id string) (*model.Apartment, error)
	UpdateApartment(ctx context.Context, apt *model.Apartment) error
	UpdateApartmentAvailability(ctx context.Context, id string, status model.AvailabilityStatus) error
	DeleteApartment(ctx context.Context, id string) error
	ListApartments(ctx context.Context, filter ApartmentFilter) ([]*model.Apartment, int64, error)
	ListApartmentIDsByOwner(ctx context.Context, ownerID string) ([]string, error)
	ApartmentStats(ctx context.Context) (*ApartmentStats, error)
}

// ApplicationStore 租赁申请存储接口
//
// CreateApplication / UpdateApplication 必须维护 Blocking 标记，
// 同一 (tenant, apartment) 已存在 blocking 申请时返回 ErrDuplicate。
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	UpdateApplication(ctx context.Context, app *model.Application) error
	DeleteApplication(ctx context.Context, id string) error
	FindBlockingApplication(ctx context.Context, tenantID, apartmentID string) (*model.Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]*model.Application, int64, error)
	ApplicationStats(ctx context.Context, since time.Time) (*ApplicationStats, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	UserStore
	OwnerStore
	TenantStore
	ApartmentStore
	ApplicationStore
	Close() error
}
