// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在环境变量中（YAML 中不存储任何密码）。
//	.env 文件同时被 Docker Compose（--env-file）与 Go 应用（godotenv）共用。
//
// 配置路径确定策略：
//  1. SetConfigDir（rentalctl --config）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径：
//     - prod → /etc/rental-admin/
//     - dev/test → ./configs/
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	UploadDir       string        `yaml:"upload_dir"`    // MinIO 未配置时的本地上传目录
	MaxUploadMB     int64         `yaml:"max_upload_mb"` // 单个请求的 multipart 上限
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "mongodb"（默认）, "postgres", "sqlite"
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 DB_PASSWORD 环境变量读取
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	URI      string `yaml:"uri"` // MongoDB 连接 URI（优先于 host/port）
}

// RedisConfig Redis 配置
//
// Host 与 URL 均为空时不启用 Redis，会话与事件退回进程内实现。
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"`
}

// MinIOConfig MinIO 对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`   // 例如 localhost:9000，为空时使用本地磁盘
	AccessKey string `yaml:"-"`          // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`          // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`    // 是否使用 HTTPS
	Bucket    string `yaml:"bucket"`     // 默认 bucket 名称
	PublicURL string `yaml:"public_url"` // 对外访问前缀，默认 http(s)://{endpoint}/{bucket}
}

// AuthConfig 认证配置
// 注意：密钥与管理员凭据只从环境变量读取，不存储在 YAML 中
type AuthConfig struct {
	JWTSecret        string        `yaml:"-"` // JWT_SECRET
	JWTRefreshSecret string        `yaml:"-"` // JWT_REFRESH_SECRET
	AccessTokenTTL   time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `yaml:"refresh_token_ttl"`
	BcryptCost       int           `yaml:"bcrypt_cost"`
	CookieSecure     bool          `yaml:"cookie_secure"`
	AdminEmail       string        `yaml:"-"` // ADMIN_EMAIL
	AdminPassword    string        `yaml:"-"` // ADMIN_PASSWORD
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text / json
}

// TelemetryConfig 链路追踪配置
type TelemetryConfig struct {
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // OTLP gRPC 地址，为空时不导出
	SampleRatio float64 `yaml:"sample_ratio"`
	Insecure    bool    `yaml:"insecure"` // 不使用 TLS 连接 collector
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	DatabaseDriver string // "postgres", "sqlite", or "mongodb"
	DatabaseURL    string
	DatabaseDBName string // MongoDB 数据库名称
	RedisURL       string // 为空表示未启用
	Server         ServerConfig
	Auth           AuthConfig
	MinIO          MinIOConfig
	Log            LogConfig
	Telemetry      TelemetryConfig
	ConfigFilePath string // 实际加载的配置文件路径
}

// yamlConfigInternal 内部包装，记录配置文件来源（不参与 YAML 序列化）
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}
