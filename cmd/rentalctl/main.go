// Package main 管理命令行工具
//
//	rentalctl seed-admin --email admin@example.com --password ...
//	rentalctl user status <email> <status>
//	rentalctl user reset-password <email> --password ...
//	rentalctl stats
//	rentalctl compose > docker-compose.yml
package main

import (
	"context"
	"fmt"
	"os"

	"rental-admin/internal/config"
	"rental-admin/internal/shared/infra"
)

func main() {
	if err := newRootCmd(openInfra).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openInfra 按配置连接存储、Redis 与对象存储
func openInfra(ctx context.Context, configDir string) (*infra.Infrastructure, *config.Config, error) {
	if configDir != "" {
		config.SetConfigDir(configDir)
	}
	cfg := config.Load()
	inf, err := infra.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return inf, cfg, nil
}
