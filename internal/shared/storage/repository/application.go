package repository

import (
	"context"
	"time"

	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
	"rental-admin/internal/shared/storage/dbutil"
)

// applicationDoc 待写入 doc 列的申请副本（不含关联的房源）
func applicationDoc(app *model.Application) (string, error) {
	cp := *app
	cp.Apartment = nil
	return marshalDoc(cp)
}

// ============================================================================
// ApplicationStore
// ============================================================================

// CreateApplication 插入申请
//
// 同一 (tenant_id, apartment_id) 只允许一条 blocking = true 的记录，
// 由部分唯一索引保证；并发插入时落败方得到 storage.ErrDuplicate。
func (s *Store) CreateApplication(ctx context.Context, app *model.Application) error {
	app.SyncBlocking()
	doc, err := applicationDoc(app)
	if err != nil {
		return err
	}
	return s.insert(ctx,
		`INSERT INTO applications (id, tenant_id, apartment_id, status, blocking, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		app.ID, app.TenantID, app.ApartmentID, app.Status, app.Blocking, doc,
		utc(app.CreatedAt), utc(app.UpdatedAt),
	)
}

func (s *Store) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	app, err := getDoc[model.Application](ctx, s, `SELECT doc FROM applications WHERE id = $1`, id)
	if app != nil {
		app.SyncBlocking()
	}
	return app, err
}

func (s *Store) UpdateApplication(ctx context.Context, app *model.Application) error {
	app.SyncBlocking()
	doc, err := applicationDoc(app)
	if err != nil {
		return err
	}
	return s.exec(ctx,
		`UPDATE applications SET tenant_id = $1, apartment_id = $2, status = $3, blocking = $4,
		 doc = $5, updated_at = $6 WHERE id = $7`,
		app.TenantID, app.ApartmentID, app.Status, app.Blocking, doc, utc(app.UpdatedAt), app.ID,
	)
}

func (s *Store) DeleteApplication(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM applications WHERE id = $1`, id)
}

func (s *Store) FindBlockingApplication(ctx context.Context, tenantID, apartmentID string) (*model.Application, error) {
	app, err := getDoc[model.Application](ctx, s,
		`SELECT doc FROM applications WHERE tenant_id = $1 AND apartment_id = $2 AND blocking = `+s.dialect.BooleanLiteral(true),
		tenantID, apartmentID)
	if app != nil {
		app.SyncBlocking()
	}
	return app, err
}

func (s *Store) ListApplications(ctx context.Context, f storage.ApplicationFilter) ([]*model.Application, int64, error) {
	w := &dbutil.Where{}
	if f.TenantID != "" {
		w.Add("tenant_id = ?", f.TenantID)
	}
	if f.ApartmentID != "" {
		w.Add("apartment_id = ?", f.ApartmentID)
	}
	if f.ApartmentIDs != nil {
		w.In("apartment_id", f.ApartmentIDs)
	}
	if f.Status != "" {
		w.Add("status = ?", f.Status)
	}

	col := "created_at"
	if f.Sort.Field == storage.SortUpdatedAt {
		col = "updated_at"
	}
	items, total, err := listDocs[model.Application](ctx, s, "applications", w, col+" "+direction(f.Sort.Desc)+", id ASC", f.Page)
	for _, app := range items {
		app.SyncBlocking()
	}
	return items, total, err
}

// ApplicationStats 按状态计数，并给出 since 起的逐月新增数
func (s *Store) ApplicationStats(ctx context.Context, since time.Time) (*storage.ApplicationStats, error) {
	byStatus, err := s.countGrouped(ctx, `SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		return nil, err
	}
	stats := &storage.ApplicationStats{ByStatus: make(map[string]int64)}
	for _, st := range model.ApplicationStatuses {
		stats.ByStatus[string(st)] = byStatus[string(st)]
		stats.Total += byStatus[string(st)]
	}

	// 按月分桶在应用层完成，两种方言的日期函数不通用
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT created_at FROM applications WHERE created_at >= $1`), utc(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	months := make(map[[2]int]int64)
	for rows.Next() {
		var created time.Time
		if err := rows.Scan(&created); err != nil {
			return nil, err
		}
		created = created.UTC()
		months[[2]int{created.Year(), int(created.Month())}]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.Monthly = storage.MonthlySeries(since, time.Now(), months)
	return stats, nil
}
