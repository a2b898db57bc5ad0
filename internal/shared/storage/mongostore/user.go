package mongostore

import (
	"context"
	"time"

	"rental-admin/internal/shared/model"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ============================================================================
// UserStore
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return insertOne(ctx, s.col(ColUsers), user)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "email", Value: model.NormalizeEmail(email)}})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) UpdateUserEmail(ctx context.Context, id, email string) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "email", Value: model.NormalizeEmail(email)},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "password_hash", Value: passwordHash},
		{Key: "password_changed_at", Value: changedAt},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateUserStatus(ctx context.Context, id string, status model.UserStatus) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "status", Value: status},
		{Key: "updated_at", Value: time.Now()},
	})
}

func (s *Store) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	return updateFields(ctx, s.col(ColUsers), id, bson.D{
		{Key: "last_logged_in", Value: at},
	})
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColUsers), id)
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.col(ColUsers).CountDocuments(ctx, bson.D{})
	return n, wrapError(err)
}
