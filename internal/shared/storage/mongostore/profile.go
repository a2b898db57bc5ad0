package mongostore

import (
	"context"

	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// profileFilter 构建档案查询条件
func profileFilter(f storage.ProfileFilter, searchBusiness bool) bson.D {
	filter := bson.D{}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: f.Status})
	}
	if f.Search != "" {
		or := bson.A{
			bson.D{{Key: "first_name", Value: containsCI(f.Search)}},
			bson.D{{Key: "last_name", Value: containsCI(f.Search)}},
			bson.D{{Key: "email", Value: containsCI(f.Search)}},
		}
		if searchBusiness {
			or = append(or, bson.D{{Key: "business_info.business_name", Value: containsCI(f.Search)}})
		}
		filter = append(filter, bson.E{Key: "$or", Value: or})
	}
	return filter
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}}

// ============================================================================
// OwnerStore
// ============================================================================

func (s *Store) CreateOwner(ctx context.Context, owner *model.Owner) error {
	return insertOne(ctx, s.col(ColOwners), owner)
}

func (s *Store) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	return findOne[model.Owner](ctx, s.col(ColOwners), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetOwnerByUserID(ctx context.Context, userID string) (*model.Owner, error) {
	return findOne[model.Owner](ctx, s.col(ColOwners), bson.D{{Key: "user_id", Value: userID}})
}

func (s *Store) UpdateOwner(ctx context.Context, owner *model.Owner) error {
	return replaceByID(ctx, s.col(ColOwners), owner.ID, owner)
}

func (s *Store) DeleteOwner(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColOwners), id)
}

func (s *Store) ListOwners(ctx context.Context, f storage.ProfileFilter) ([]*model.Owner, int64, error) {
	return findPage[model.Owner](ctx, s.col(ColOwners), profileFilter(f, true), newestFirst, f.Page)
}

func (s *Store) CountOwnersByStatus(ctx context.Context) (map[string]int64, error) {
	return countByField(ctx, s.col(ColOwners), "status")
}

// ============================================================================
// TenantStore
// ============================================================================

func (s *Store) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	return insertOne(ctx, s.col(ColTenants), tenant)
}

func (s *Store) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	return findOne[model.Tenant](ctx, s.col(ColTenants), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetTenantByUserID(ctx context.Context, userID string) (*model.Tenant, error) {
	return findOne[model.Tenant](ctx, s.col(ColTenants), bson.D{{Key: "user_id", Value: userID}})
}

func (s *Store) UpdateTenant(ctx context.Context, tenant *model.Tenant) error {
	return replaceByID(ctx, s.col(ColTenants), tenant.ID, tenant)
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColTenants), id)
}

func (s *Store) ListTenants(ctx context.Context, f storage.ProfileFilter) ([]*model.Tenant, int64, error) {
	return findPage[model.Tenant](ctx, s.col(ColTenants), profileFilter(f, false), newestFirst, f.Page)
}
