// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：持久化存储（MongoDB / SQLite / PostgreSQL）
//   - Sessions：刷新令牌会话登记（Redis 或进程内 ccache）
//   - Events：领域事件总线（Redis Streams 或进程内）
//   - Objects：上传文件存储（MinIO 或本地目录）
package infra

import (
	"context"
	"errors"
	"fmt"
	"log"

	"rental-admin/internal/config"
	"rental-admin/internal/shared/cache"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/objstore"
	"rental-admin/internal/shared/storage"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 持久化存储
	Storage storage.PersistentStore

	// Sessions 会话登记
	Sessions cache.Cache

	// Events 事件总线
	Events eventbus.EventBus

	// Objects 对象存储
	Objects objstore.Store

	redis *RedisInfra
}

// New 按配置初始化全部基础设施
//
// Redis 未配置时退化为进程内实现；MinIO 未配置时落盘到 UploadDir。
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	store, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	i := &Infrastructure{Storage: store}

	if cfg.RedisURL != "" {
		r, err := NewRedisInfra(cfg.RedisURL)
		if err != nil {
			i.Close()
			return nil, err
		}
		i.redis = r
		i.Sessions = r.Cache()
		i.Events = r.EventBus()
	} else {
		log.Printf("[infra] Redis not configured, using in-process session cache and event bus")
		i.Sessions = cache.NewMemory(0)
		i.Events = eventbus.NewMemory()
	}

	if cfg.MinIO.Endpoint != "" {
		mc, err := objstore.NewMinIO(cfg.MinIO)
		if err != nil {
			i.Close()
			return nil, err
		}
		if err := mc.EnsureBucket(ctx); err != nil {
			i.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		i.Objects = mc
	} else {
		disk, err := objstore.NewDisk(cfg.Server.UploadDir)
		if err != nil {
			i.Close()
			return nil, err
		}
		log.Printf("[infra] MinIO not configured, storing uploads in %s", disk.Root())
		i.Objects = disk
	}

	return i, nil
}

// NewInMemory 创建使用进程内组件的基础设施（用于测试和 CLI）
func NewInMemory(store storage.PersistentStore, objects objstore.Store) *Infrastructure {
	return &Infrastructure{
		Storage:  store,
		Sessions: cache.NewMemory(0),
		Events:   eventbus.NewMemory(),
		Objects:  objects,
	}
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var errs []error

	if i.Storage != nil {
		errs = append(errs, i.Storage.Close())
	}
	if i.Sessions != nil {
		errs = append(errs, i.Sessions.Close())
	}
	if i.Events != nil {
		errs = append(errs, i.Events.Close())
	}
	if i.redis != nil {
		errs = append(errs, i.redis.Close())
	}
	return errors.Join(errs...)
}
