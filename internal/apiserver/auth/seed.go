package auth

import (
	"context"
	"fmt"
	"log"

	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
)

// SeedAdmin 按邮箱创建 superadmin；已存在时返回现有用户和 false
func SeedAdmin(ctx context.Context, users storage.UserStore, email, password string, cost int) (*model.User, bool, error) {
	email = model.NormalizeEmail(email)
	existing, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	user, err := NewUser(email, password, model.RoleSuperAdmin, model.UserStatusApproved, cost)
	if err != nil {
		return nil, false, fmt.Errorf("build admin user: %w", err)
	}
	user.EmailVerified = true
	if err := users.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create admin user: %w", err)
	}
	return user, true, nil
}

// EnsureSeedAdmin 用户表为空时创建初始 superadmin（启动时调用）
//
// 未配置 ADMIN_EMAIL / ADMIN_PASSWORD 或已有用户时跳过，返回 nil。
func EnsureSeedAdmin(ctx context.Context, users storage.UserStore, email, password string, cost int) (*model.User, error) {
	if email == "" || password == "" {
		return nil, nil
	}
	n, err := users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return nil, nil
	}
	user, created, err := SeedAdmin(ctx, users, email, password, cost)
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("[auth] Created superadmin: %s (%s)", user.Email, user.ID)
	}
	return user, nil
}
