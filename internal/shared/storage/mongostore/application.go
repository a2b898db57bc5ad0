package mongostore

import (
	"context"
	"time"

	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// ============================================================================
// ApplicationStore
// ============================================================================

// CreateApplication 插入申请
//
// 并发创建时由 (tenant_id, apartment_id, blocking=true) 部分唯一索引兜底，
// 落败的一方得到 storage.ErrDuplicate。
func (s *Store) CreateApplication(ctx context.Context, app *model.Application) error {
	app.SyncBlocking()
	return insertOne(ctx, s.col(ColApplications), app)
}

func (s *Store) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	return findOne[model.Application](ctx, s.col(ColApplications), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) UpdateApplication(ctx context.Context, app *model.Application) error {
	app.SyncBlocking()
	return replaceByID(ctx, s.col(ColApplications), app.ID, app)
}

func (s *Store) DeleteApplication(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColApplications), id)
}

func (s *Store) FindBlockingApplication(ctx context.Context, tenantID, apartmentID string) (*model.Application, error) {
	return findOne[model.Application](ctx, s.col(ColApplications), bson.D{
		{Key: "tenant_id", Value: tenantID},
		{Key: "apartment_id", Value: apartmentID},
		{Key: "blocking", Value: true},
	})
}

func (s *Store) ListApplications(ctx context.Context, f storage.ApplicationFilter) ([]*model.Application, int64, error) {
	filter := bson.D{}
	if f.TenantID != "" {
		filter = append(filter, bson.E{Key: "tenant_id", Value: f.TenantID})
	}
	if f.ApartmentID != "" {
		filter = append(filter, bson.E{Key: "apartment_id", Value: f.ApartmentID})
	}
	if f.ApartmentIDs != nil {
		filter = append(filter, bson.E{Key: "apartment_id", Value: bson.D{{Key: "$in", Value: f.ApartmentIDs}}})
	}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: f.Status})
	}

	field := "created_at"
	if f.Sort.Field == storage.SortUpdatedAt {
		field = "updated_at"
	}
	sort := bson.D{{Key: field, Value: sortDirection(f.Sort.Desc)}, {Key: "_id", Value: 1}}

	return findPage[model.Application](ctx, s.col(ColApplications), filter, sort, f.Page)
}

func (s *Store) ApplicationStats(ctx context.Context, since time.Time) (*storage.ApplicationStats, error) {
	col := s.col(ColApplications)

	byStatus, err := countByField(ctx, col, "status")
	if err != nil {
		return nil, err
	}
	stats := &storage.ApplicationStats{ByStatus: make(map[string]int64)}
	for _, st := range model.ApplicationStatuses {
		stats.ByStatus[string(st)] = byStatus[string(st)]
		stats.Total += byStatus[string(st)]
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "created_at", Value: bson.D{{Key: "$gte", Value: since}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "year", Value: bson.D{{Key: "$year", Value: "$created_at"}}},
				{Key: "month", Value: bson.D{{Key: "$month", Value: "$created_at"}}},
			}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	months := make(map[[2]int]int64)
	for cursor.Next(ctx) {
		var row struct {
			ID struct {
				Year  int `bson:"year"`
				Month int `bson:"month"`
			} `bson:"_id"`
			Count int64 `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		months[[2]int{row.ID.Year, row.ID.Month}] = row.Count
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	stats.Monthly = storage.MonthlySeries(since, time.Now(), months)
	return stats, nil
}
