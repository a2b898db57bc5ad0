// Package repository 数据库无关的业务逻辑存储层
//
// 通过 dbutil.Dialect 接口屏蔽不同数据库的 SQL 差异，
// 所有 SQL 以 PostgreSQL 风格编写，运行时由 Dialect.Rebind() 转换。
//
// 用户表按列存储；房东、租客、房源、申请整体序列化到 doc 列，
// 只把过滤、排序、唯一约束用到的字段冗余为独立列。读取时以 doc 为准。
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rental-admin/internal/shared/storage"
	"rental-admin/internal/shared/storage/dbutil"
)

// Store 通用存储实现
// 实现了 storage.PersistentStore 接口
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

var _ storage.PersistentStore = (*Store)(nil)

// NewStore 创建通用存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// DB 返回底层数据库连接（仅用于测试）
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect 返回当前方言
func (s *Store) Dialect() dbutil.Dialect {
	return s.dialect
}

// rebind 快捷方法：将 PG 风格 SQL 转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// ============================================================================
// 执行辅助
// ============================================================================

// wrapError 将唯一约束冲突转换为 storage.ErrDuplicate
func (s *Store) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	return err
}

// exec 执行写语句，要求至少影响一行，否则返回 storage.ErrNotFound
func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return s.wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// insert 执行插入语句
func (s *Store) insert(ctx context.Context, query string, args ...interface{}) error {
	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	return s.wrapError(err)
}

// count 执行 COUNT 查询
func (s *Store) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n)
	return n, err
}

// countGrouped 执行 "SELECT key, COUNT(*) ... GROUP BY key" 查询
func (s *Store) countGrouped(ctx context.Context, query string, args ...interface{}) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

// ============================================================================
// doc 列读写
// ============================================================================

// marshalDoc 序列化实体到 doc 列
func marshalDoc(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal doc: %w", err)
	}
	return string(data), nil
}

// getDoc 查询单行 doc 列并反序列化，不存在时返回 (nil, nil)
func getDoc[T any](ctx context.Context, s *Store, query string, args ...interface{}) (*T, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("unmarshal doc: %w", err)
	}
	return out, nil
}

// listDocs 分页查询 doc 列，返回当前页与总数
func listDocs[T any](ctx context.Context, s *Store, table string, w *dbutil.Where, orderBy string, p storage.Page) ([]*T, int64, error) {
	p = p.Normalize()

	total, err := s.count(ctx, "SELECT COUNT(*) FROM "+table+w.Clause(), w.Args()...)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT doc FROM " + table + w.Clause() + " ORDER BY " + orderBy
	query += " LIMIT " + w.NextPlaceholder(p.Limit) + " OFFSET " + w.NextPlaceholder(p.Offset())

	rows, err := s.db.QueryContext(ctx, s.rebind(query), w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]*T, 0, p.Limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, 0, err
		}
		item := new(T)
		if err := json.Unmarshal(raw, item); err != nil {
			return nil, 0, fmt.Errorf("unmarshal doc: %w", err)
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// direction 排序方向
func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

// utc 统一以 UTC 写入时间，保证 SQLite 文本时间可按字典序比较
func utc(t time.Time) time.Time {
	return t.UTC()
}

// nullTime 可空时间参数
func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
