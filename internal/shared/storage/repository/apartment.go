package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
	"rental-admin/internal/shared/storage/dbutil"
)

// apartmentSortColumns 逻辑排序字段 → 列名
var apartmentSortColumns = map[string]string{
	storage.SortCreatedAt:  "created_at",
	storage.SortUpdatedAt:  "updated_at",
	storage.SortRentAmount: "rent_amount",
	storage.SortTitle:      "title",
	storage.SortBedrooms:   "bedrooms",
}

// ============================================================================
// ApartmentStore
// ============================================================================

func (s *Store) CreateApartment(ctx context.Context, apt *model.Apartment) error {
	doc, err := marshalDoc(apt)
	if err != nil {
		return err
	}
	return s.insert(ctx,
		`INSERT INTO apartments (id, owner_id, title, description, street, city, state, rent_amount,
		 bedrooms, bathrooms, status, availability_status, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		apt.ID, apt.OwnerID, apt.Title, apt.Description, apt.Address.Street, apt.Address.City,
		apt.Address.State, apt.Rent.Amount, apt.PropertyDetails.Bedrooms, apt.PropertyDetails.Bathrooms,
		apt.Status, apt.Availability.Status, doc, utc(apt.CreatedAt), utc(apt.UpdatedAt),
	)
}

func (s *Store) GetApartment(ctx context.Context, id string) (*model.Apartment, error) {
	return getDoc[model.Apartment](ctx, s, `SELECT doc FROM apartments WHERE id = $1`, id)
}

func (s *Store) UpdateApartment(ctx context.Context, apt *model.Apartment) error {
	return s.updateApartment(ctx, s.db, apt)
}

// execer *sql.DB 与 *sql.Tx 的公共子集
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) updateApartment(ctx context.Context, db execer, apt *model.Apartment) error {
	doc, err := marshalDoc(apt)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, s.rebind(
		`UPDATE apartments SET owner_id = $1, title = $2, description = $3, street = $4, city = $5, state = $6,
		 rent_amount = $7, bedrooms = $8, bathrooms = $9, status = $10, availability_status = $11,
		 doc = $12, updated_at = $13 WHERE id = $14`),
		apt.OwnerID, apt.Title, apt.Description, apt.Address.Street, apt.Address.City, apt.Address.State,
		apt.Rent.Amount, apt.PropertyDetails.Bedrooms, apt.PropertyDetails.Bathrooms, apt.Status,
		apt.Availability.Status, doc, utc(apt.UpdatedAt), apt.ID,
	)
	if err != nil {
		return s.wrapError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateApartmentAvailability 仅修改可租状态
//
// doc 列需要整体重写，因此在事务内读改写。
func (s *Store) UpdateApartmentAvailability(ctx context.Context, id string, status model.AvailabilityStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT doc FROM apartments WHERE id = $1`), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}
	var apt model.Apartment
	if err := json.Unmarshal(raw, &apt); err != nil {
		return fmt.Errorf("unmarshal doc: %w", err)
	}
	apt.Availability.Status = status
	apt.UpdatedAt = time.Now().UTC()
	if err := s.updateApartment(ctx, tx, &apt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteApartment(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM apartments WHERE id = $1`, id)
}

func (s *Store) ListApartments(ctx context.Context, f storage.ApartmentFilter) ([]*model.Apartment, int64, error) {
	w := &dbutil.Where{}
	if f.OwnerID != "" {
		w.Add("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		w.Add("status = ?", f.Status)
	}
	if f.Availability != "" {
		w.Add("availability_status = ?", f.Availability)
	}
	if f.City != "" {
		w.Add(`LOWER(city) LIKE ? ESCAPE '\'`, dbutil.LikePattern(f.City))
	}
	if f.State != "" {
		w.Add(`LOWER(state) LIKE ? ESCAPE '\'`, dbutil.LikePattern(f.State))
	}
	if f.MinRent != nil {
		w.Add("rent_amount >= ?", *f.MinRent)
	}
	if f.MaxRent != nil {
		w.Add("rent_amount <= ?", *f.MaxRent)
	}
	if f.Bedrooms != nil {
		w.Add("bedrooms = ?", *f.Bedrooms)
	}
	if f.Bathrooms != nil {
		w.Add("bathrooms = ?", *f.Bathrooms)
	}
	if f.Search != "" {
		p := dbutil.LikePattern(f.Search)
		w.Add(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'
			OR LOWER(street) LIKE ? ESCAPE '\' OR LOWER(city) LIKE ? ESCAPE '\')`, p, p, p, p)
	}

	col, ok := apartmentSortColumns[f.Sort.Field]
	if !ok {
		col = "created_at"
	}
	orderBy := col + " " + direction(f.Sort.Desc) + ", id ASC"

	return listDocs[model.Apartment](ctx, s, "apartments", w, orderBy, f.Page)
}

func (s *Store) ListApartmentIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id FROM apartments WHERE owner_id = $1`), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ApartmentStats(ctx context.Context) (*storage.ApartmentStats, error) {
	stats := &storage.ApartmentStats{}
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN availability_status = $1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN availability_status = $2 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = $3 THEN 1 ELSE 0 END), 0),
		AVG(CASE WHEN status = $4 THEN rent_amount END)
		FROM apartments`),
		model.AvailabilityAvailable, model.AvailabilityRented, model.ApartmentStatusActive, model.ApartmentStatusActive,
	).Scan(&stats.Total, &stats.Available, &stats.Rented, &stats.Active, &avg)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		stats.AverageRent = math.Round(avg.Float64*100) / 100
	}
	return stats, nil
}
