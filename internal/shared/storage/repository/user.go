package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"rental-admin/internal/shared/model"
)

const userColumns = `id, email, password_hash, auth_type, email_verified, onboarding,
	roles, permissions, status, password_changed_at, last_logged_in, created_at, updated_at`

// CreateUser 创建用户
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return err
	}
	perms := user.Permissions
	if perms == nil {
		perms = []string{}
	}
	permissions, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return s.insert(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		user.ID, model.NormalizeEmail(user.Email), user.PasswordHash, user.AuthType,
		user.EmailVerified, user.Onboarding, string(roles), string(permissions), user.Status,
		nullTime(user.PasswordChangedAt), nullTime(user.LastLoggedIn),
		utc(user.CreatedAt), utc(user.UpdatedAt),
	)
}

// GetUserByEmail 通过邮箱查找用户（大小写不敏感）
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, model.NormalizeEmail(email))
}

// GetUserByID 通过 ID 查找用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, query string, args ...interface{}) (*model.User, error) {
	var (
		u                   model.User
		roles, permissions  string
		changedAt, loggedIn sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.AuthType, &u.EmailVerified, &u.Onboarding,
		&roles, &permissions, &u.Status, &changedAt, &loggedIn, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(permissions), &u.Permissions); err != nil {
		return nil, err
	}
	if changedAt.Valid {
		t := changedAt.Time
		u.PasswordChangedAt = &t
	}
	if loggedIn.Valid {
		t := loggedIn.Time
		u.LastLoggedIn = &t
	}
	return &u, nil
}

// UpdateUserEmail 更新登录邮箱
func (s *Store) UpdateUserEmail(ctx context.Context, id, email string) error {
	return s.exec(ctx,
		`UPDATE users SET email = $1, updated_at = $2 WHERE id = $3`,
		model.NormalizeEmail(email), utc(time.Now()), id,
	)
}

// UpdateUserPassword 更新用户密码
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return s.exec(ctx,
		`UPDATE users SET password_hash = $1, password_changed_at = $2, updated_at = $3 WHERE id = $4`,
		passwordHash, utc(changedAt), utc(time.Now()), id,
	)
}

// UpdateUserStatus 更新账户状态
func (s *Store) UpdateUserStatus(ctx context.Context, id string, status model.UserStatus) error {
	return s.exec(ctx,
		`UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`,
		status, utc(time.Now()), id,
	)
}

// UpdateUserLastLogin 记录最近登录时间
func (s *Store) UpdateUserLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.exec(ctx, `UPDATE users SET last_logged_in = $1 WHERE id = $2`, utc(at), id)
}

// DeleteUser 删除用户
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

// CountUsers 用户总数
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}
