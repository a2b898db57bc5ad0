package mongostore

import (
	"context"
	"math"
	"time"

	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// apartmentSortFields 逻辑排序字段 → bson 字段
var apartmentSortFields = map[string]string{
	storage.SortCreatedAt:  "created_at",
	storage.SortUpdatedAt:  "updated_at",
	storage.SortRentAmount: "rent.amount",
	storage.SortTitle:      "title",
	storage.SortBedrooms:   "property_details.bedrooms",
}

// ============================================================================
// ApartmentStore
// ============================================================================

func (s *Store) CreateApartment(ctx context.Context, apt *model.Apartment) error {
	return insertOne(ctx, s.col(ColApartments), apt)
}

func (s *Store) GetApartment(ctx context.Context, id string) (*model.Apartment, error) {
	return findOne[model.Apartment](ctx, s.col(ColApartments), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) UpdateApartment(ctx context.Context, apt *model.Apartment) error {
	return replaceByID(ctx, s.col(ColApartments), apt.ID, apt)
}

func (s *Store) UpdateApartmentAvailability(ctx context.Context, id string, status model.AvailabilityStatus) error {
	return updateFields(ctx, s.col(ColApartments), id, bson.D{
		{Key: "availability.status", Value: status},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) DeleteApartment(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColApartments), id)
}

func (s *Store) ListApartments(ctx context.Context, f storage.ApartmentFilter) ([]*model.Apartment, int64, error) {
	filter := bson.D{}
	if f.OwnerID != "" {
		filter = append(filter, bson.E{Key: "owner_id", Value: f.OwnerID})
	}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: f.Status})
	}
	if f.Availability != "" {
		filter = append(filter, bson.E{Key: "availability.status", Value: f.Availability})
	}
	if f.City != "" {
		filter = append(filter, bson.E{Key: "address.city", Value: containsCI(f.City)})
	}
	if f.State != "" {
		filter = append(filter, bson.E{Key: "address.state", Value: containsCI(f.State)})
	}
	if f.MinRent != nil || f.MaxRent != nil {
		rent := bson.D{}
		if f.MinRent != nil {
			rent = append(rent, bson.E{Key: "$gte", Value: *f.MinRent})
		}
		if f.MaxRent != nil {
			rent = append(rent, bson.E{Key: "$lte", Value: *f.MaxRent})
		}
		filter = append(filter, bson.E{Key: "rent.amount", Value: rent})
	}
	if f.Bedrooms != nil {
		filter = append(filter, bson.E{Key: "property_details.bedrooms", Value: *f.Bedrooms})
	}
	if f.Bathrooms != nil {
		filter = append(filter, bson.E{Key: "property_details.bathrooms", Value: *f.Bathrooms})
	}
	if f.Search != "" {
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: containsCI(f.Search)}},
			bson.D{{Key: "description", Value: containsCI(f.Search)}},
			bson.D{{Key: "address.street", Value: containsCI(f.Search)}},
			bson.D{{Key: "address.city", Value: containsCI(f.Search)}},
		}})
	}

	field, ok := apartmentSortFields[f.Sort.Field]
	if !ok {
		field = "created_at"
	}
	sort := bson.D{{Key: field, Value: sortDirection(f.Sort.Desc)}, {Key: "_id", Value: 1}}

	return findPage[model.Apartment](ctx, s.col(ColApartments), filter, sort, f.Page)
}

func (s *Store) ListApartmentIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.col(ColApartments).Find(ctx, bson.D{{Key: "owner_id", Value: ownerID}}, opts)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	ids := []string{}
	for cursor.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cursor.Err()
}

func (s *Store) ApartmentStats(ctx context.Context) (*storage.ApartmentStats, error) {
	col := s.col(ColApartments)
	stats := &storage.ApartmentStats{}

	counts := []struct {
		dst    *int64
		filter bson.D
	}{
		{&stats.Total, bson.D{}},
		{&stats.Available, bson.D{{Key: "availability.status", Value: model.AvailabilityAvailable}}},
		{&stats.Rented, bson.D{{Key: "availability.status", Value: model.AvailabilityRented}}},
		{&stats.Active, bson.D{{Key: "status", Value: model.ApartmentStatusActive}}},
	}
	for _, c := range counts {
		n, err := col.CountDocuments(ctx, c.filter)
		if err != nil {
			return nil, wrapError(err)
		}
		*c.dst = n
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "status", Value: model.ApartmentStatusActive}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$rent.amount"}}},
		}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)
	if cursor.Next(ctx) {
		var row struct {
			Avg float64 `bson:"avg"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		stats.AverageRent = math.Round(row.Avg*100) / 100
	}
	return stats, cursor.Err()
}
