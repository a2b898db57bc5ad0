// Package mongostore 实现基于 MongoDB 的 PersistentStore
//
// 使用 mongo-go-driver v2，通过 bson tag 实现 model 结构体的序列化/反序列化。
// 所有 Collection 名称和索引在 ensureIndexes 中统一管理。
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection 名称常量
const (
	ColUsers        = "users"
	ColOwners       = "owners"
	ColTenants      = "tenants"
	ColApartments   = "apartments"
	ColApplications = "applications"
)

// Store 实现 storage.PersistentStore 接口的 MongoDB 驱动
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore 创建 MongoDB 存储实例
//
// uri: MongoDB 连接 URI，如 "mongodb://localhost:27017"
// dbName: 数据库名称，如 "rental_admin"
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	// 验证连接
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{client: client, db: db}

	// 申请唯一性依赖部分唯一索引，索引创建失败时拒绝启动
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ensure indexes failed: %w", err)
	}
	log.Printf("[mongostore] connected to database %s", dbName)

	return s, nil
}

// Close 关闭 MongoDB 连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// col 获取指定 Collection
func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// ensureIndexes 创建所有必要的索引
func (s *Store) ensureIndexes(ctx context.Context) error {
	type idx struct {
		col     string
		keys    bson.D
		unique  bool
		partial bson.D
	}

	indexes := []idx{
		// users
		{col: ColUsers, keys: bson.D{{Key: "email", Value: 1}}, unique: true},
		{col: ColUsers, keys: bson.D{{Key: "status", Value: 1}}},

		// owners
		{col: ColOwners, keys: bson.D{{Key: "email", Value: 1}}, unique: true},
		{col: ColOwners, keys: bson.D{{Key: "user_id", Value: 1}}, unique: true},
		{col: ColOwners, keys: bson.D{{Key: "status", Value: 1}}},

		// tenants
		{col: ColTenants, keys: bson.D{{Key: "email", Value: 1}}, unique: true},
		{col: ColTenants, keys: bson.D{{Key: "user_id", Value: 1}}, unique: true},

		// apartments
		{col: ColApartments, keys: bson.D{{Key: "owner_id", Value: 1}}},
		{col: ColApartments, keys: bson.D{{Key: "status", Value: 1}}},
		{col: ColApartments, keys: bson.D{{Key: "availability.status", Value: 1}}},
		{col: ColApartments, keys: bson.D{{Key: "rent.amount", Value: 1}}},
		{col: ColApartments, keys: bson.D{{Key: "address.city", Value: 1}, {Key: "address.state", Value: 1}}},
		{col: ColApartments, keys: bson.D{{Key: "created_at", Value: -1}}},

		// applications
		{col: ColApplications, keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "apartment_id", Value: 1}},
			unique: true, partial: bson.D{{Key: "blocking", Value: true}}},
		{col: ColApplications, keys: bson.D{{Key: "apartment_id", Value: 1}}},
		{col: ColApplications, keys: bson.D{{Key: "status", Value: 1}}},
		{col: ColApplications, keys: bson.D{{Key: "created_at", Value: -1}}},
	}

	for _, i := range indexes {
		model := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			opts := options.Index().SetUnique(true)
			if i.partial != nil {
				opts.SetPartialFilterExpression(i.partial)
			}
			model.Options = opts
		}
		if _, err := s.col(i.col).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create index on %s: %w", i.col, err)
		}
	}

	return nil
}
