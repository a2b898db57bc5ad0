// Package deployments 嵌入部署相关文件到二进制
//
// 包含：
//   - init-db.sql: PostgreSQL 全量建表脚本（幂等，启动时由 postgres 驱动执行）
//   - docker-compose.yml: 本地依赖（MongoDB、PostgreSQL、Redis、MinIO）
package deployments

import (
	_ "embed"
)

// InitDBSQL PostgreSQL 全量初始化脚本
//
//go:embed init-db.sql
var InitDBSQL string

// DockerCompose 本地开发依赖编排模板（rentalctl compose 输出）
//
//go:embed docker-compose.yml
var DockerCompose string
