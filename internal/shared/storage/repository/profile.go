package repository

import (
	"context"

	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
	"rental-admin/internal/shared/storage/dbutil"
)

// profileWhere 构建档案查询条件
func profileWhere(f storage.ProfileFilter, searchBusiness bool) *dbutil.Where {
	w := &dbutil.Where{}
	if f.Status != "" {
		w.Add("status = ?", f.Status)
	}
	if f.Search != "" {
		p := dbutil.LikePattern(f.Search)
		expr := `(LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`
		args := []interface{}{p, p, p}
		if searchBusiness {
			expr += ` OR LOWER(business_name) LIKE ? ESCAPE '\'`
			args = append(args, p)
		}
		w.Add(expr+")", args...)
	}
	return w
}

const newestFirst = "created_at DESC, id ASC"

// ============================================================================
// OwnerStore
// ============================================================================

func businessName(o *model.Owner) string {
	if o.BusinessInfo == nil {
		return ""
	}
	return o.BusinessInfo.BusinessName
}

func (s *Store) CreateOwner(ctx context.Context, owner *model.Owner) error {
	doc, err := marshalDoc(owner)
	if err != nil {
		return err
	}
	return s.insert(ctx,
		`INSERT INTO owners (id, user_id, email, first_name, last_name, business_name, status, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		owner.ID, owner.UserID, owner.Email, owner.FirstName, owner.LastName, businessName(owner),
		owner.Status, doc, utc(owner.CreatedAt), utc(owner.UpdatedAt),
	)
}

func (s *Store) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	return getDoc[model.Owner](ctx, s, `SELECT doc FROM owners WHERE id = $1`, id)
}

func (s *Store) GetOwnerByUserID(ctx context.Context, userID string) (*model.Owner, error) {
	return getDoc[model.Owner](ctx, s, `SELECT doc FROM owners WHERE user_id = $1`, userID)
}

func (s *Store) UpdateOwner(ctx context.Context, owner *model.Owner) error {
	doc, err := marshalDoc(owner)
	if err != nil {
		return err
	}
	return s.exec(ctx,
		`UPDATE owners SET user_id = $1, email = $2, first_name = $3, last_name = $4, business_name = $5,
		 status = $6, doc = $7, updated_at = $8 WHERE id = $9`,
		owner.UserID, owner.Email, owner.FirstName, owner.LastName, businessName(owner),
		owner.Status, doc, utc(owner.UpdatedAt), owner.ID,
	)
}

func (s *Store) DeleteOwner(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM owners WHERE id = $1`, id)
}

func (s *Store) ListOwners(ctx context.Context, f storage.ProfileFilter) ([]*model.Owner, int64, error) {
	return listDocs[model.Owner](ctx, s, "owners", profileWhere(f, true), newestFirst, f.Page)
}

func (s *Store) CountOwnersByStatus(ctx context.Context) (map[string]int64, error) {
	return s.countGrouped(ctx, `SELECT status, COUNT(*) FROM owners GROUP BY status`)
}

// ============================================================================
// TenantStore
// ============================================================================

func (s *Store) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	doc, err := marshalDoc(tenant)
	if err != nil {
		return err
	}
	return s.insert(ctx,
		`INSERT INTO tenants (id, user_id, email, first_name, last_name, status, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tenant.ID, tenant.UserID, tenant.Email, tenant.FirstName, tenant.LastName,
		tenant.Status, doc, utc(tenant.CreatedAt), utc(tenant.UpdatedAt),
	)
}

func (s *Store) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	return getDoc[model.Tenant](ctx, s, `SELECT doc FROM tenants WHERE id = $1`, id)
}

func (s *Store) GetTenantByUserID(ctx context.Context, userID string) (*model.Tenant, error) {
	return getDoc[model.Tenant](ctx, s, `SELECT doc FROM tenants WHERE user_id = $1`, userID)
}

func (s *Store) UpdateTenant(ctx context.Context, tenant *model.Tenant) error {
	doc, err := marshalDoc(tenant)
	if err != nil {
		return err
	}
	return s.exec(ctx,
		`UPDATE tenants SET user_id = $1, email = $2, first_name = $3, last_name = $4,
		 status = $5, doc = $6, updated_at = $7 WHERE id = $8`,
		tenant.UserID, tenant.Email, tenant.FirstName, tenant.LastName,
		tenant.Status, doc, utc(tenant.UpdatedAt), tenant.ID,
	)
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
}

func (s *Store) ListTenants(ctx context.Context, f storage.ProfileFilter) ([]*model.Tenant, int64, error) {
	return listDocs[model.Tenant](ctx, s, "tenants", profileWhere(f, false), newestFirst, f.Page)
}
