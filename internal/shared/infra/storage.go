package infra

import (
	"database/sql"
	"fmt"
	"log"

	"rental-admin/internal/config"
	"rental-admin/internal/shared/storage"
	"rental-admin/internal/shared/storage/dbutil"
	"rental-admin/internal/shared/storage/driver/postgres"
	"rental-admin/internal/shared/storage/driver/sqlite"
	"rental-admin/internal/shared/storage/mongostore"
	"rental-admin/internal/shared/storage/repository"
)

// OpenStorage 按 DatabaseDriver 打开持久化存储并完成建表/建索引
func OpenStorage(cfg *config.Config) (storage.PersistentStore, error) {
	switch cfg.DatabaseDriver {
	case "sqlite":
		db, err := sqlite.Open(config.SQLiteDSN(cfg.DatabaseURL))
		if err != nil {
			return nil, err
		}
		return openRepository(db, sqlite.NewDialect())
	case "postgres":
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return openRepository(db, postgres.NewDialect())
	default:
		store, err := mongostore.NewStore(cfg.DatabaseURL, cfg.DatabaseDBName)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// openRepository 执行建表并创建 SQL 存储
func openRepository(db *sql.DB, dialect dbutil.Dialect) (*repository.Store, error) {
	if err := dialect.AutoMigrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: auto migrate: %w", dialect.DriverType(), err)
	}
	log.Printf("[infra] %s schema ready", dialect.DriverType())
	return repository.NewStore(db, dialect), nil
}
