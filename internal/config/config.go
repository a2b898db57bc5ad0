package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 开发环境默认密钥，生产环境必须覆盖
const (
	devJWTSecret        = "dev-access-secret-change-me"
	devJWTRefreshSecret = "dev-refresh-secret-change-me"
)

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 {env}.yaml
// 3. 环境变量覆盖
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)
	// .env 可能设置了 APP_ENV
	env = parseEnv(getEnv("APP_ENV", string(env)))

	yamlCfg := loadYAMLConfig(env)
	y := yamlCfg.YAMLConfig

	y.Database.Password = getEnv("DB_PASSWORD", "")
	y.Redis.Password = getEnv("REDIS_PASSWORD", "")

	databaseURL := firstEnv("DATABASE_URL", "MONGO_URI", "MONGODB_URI")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(y.Database, y.Database.Password)
	}

	redisURL := getEnv("REDIS_URL", "")
	if redisURL == "" && (y.Redis.URL != "" || y.Redis.Host != "") {
		redisURL = buildRedisURL(y.Redis)
	}

	cfg := &Config{
		Env:            env,
		DatabaseDriver: detectDatabaseDriver(y.Database.Driver, databaseURL),
		DatabaseURL:    databaseURL,
		DatabaseDBName: getEnv("DB_NAME", y.Database.Name),
		RedisURL:       redisURL,
		Server:         y.Server,
		Auth:           y.Auth,
		MinIO:          y.MinIO,
		Log:            y.Log,
		Telemetry:      y.Telemetry,
		ConfigFilePath: yamlCfg.loadedFrom,
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg
}

// defaultYAMLConfig 硬编码默认值
func defaultYAMLConfig() YAMLConfig {
	return YAMLConfig{
		Server: ServerConfig{
			Port:            "5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
			UploadDir:       "uploads",
			MaxUploadMB:     50,
		},
		Database: DatabaseConfig{Host: "localhost", Port: 27017, Name: "rental_admin", SSLMode: "disable"},
		Auth: AuthConfig{
			AccessTokenTTL:  24 * time.Hour,
			RefreshTokenTTL: 30 * 24 * time.Hour,
			BcryptCost:      10,
		},
		MinIO:     MinIOConfig{Bucket: "rental-admin"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{ServiceName: "rental-admin", SampleRatio: 1.0},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → {env}.yaml
func loadYAMLConfig(env Environment) *yamlConfigInternal {
	cfg := &yamlConfigInternal{YAMLConfig: defaultYAMLConfig()}

	path := findConfigFile(env)
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] read %s failed: %v", path, err)
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
		log.Printf("[config] parse %s failed: %v", path, err)
		return cfg
	}
	cfg.loadedFrom = path
	return cfg
}

// applyEnvOverrides 用环境变量覆盖 YAML 值
func (c *Config) applyEnvOverrides() {
	if v := firstEnv("PORT", "API_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.Server.UploadDir = v
	}

	c.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	c.Auth.JWTRefreshSecret = getEnv("JWT_REFRESH_SECRET", "")
	c.Auth.AdminEmail = getEnv("ADMIN_EMAIL", "")
	c.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", "")
	if v := os.Getenv("JWT_EXPIRE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Auth.AccessTokenTTL = d
		}
	}
	if v := os.Getenv("JWT_REFRESH_EXPIRE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Auth.RefreshTokenTTL = d
		}
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Auth.BcryptCost = n
		}
	}

	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		c.MinIO.Endpoint = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		c.MinIO.Bucket = v
	}
	c.MinIO.AccessKey = firstEnv("MINIO_ROOT_USER", "MINIO_ACCESS_KEY")
	c.MinIO.SecretKey = firstEnv("MINIO_ROOT_PASSWORD", "MINIO_SECRET_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		c.Telemetry.Insecure = true
	}
}

// applyDefaults 填充缺省值（开发密钥、生产 Cookie 安全标志）
func (c *Config) applyDefaults() {
	if c.Env != EnvProduction {
		if c.Auth.JWTSecret == "" {
			c.Auth.JWTSecret = devJWTSecret
		}
		if c.Auth.JWTRefreshSecret == "" {
			c.Auth.JWTRefreshSecret = devJWTRefreshSecret
		}
	} else {
		c.Auth.CookieSecure = true
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	if c.DatabaseDBName == "" {
		c.DatabaseDBName = "rental_admin"
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" || c.Auth.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET are required"))
	}
	if c.Env == EnvProduction {
		if c.Auth.JWTSecret == devJWTSecret || c.Auth.JWTRefreshSecret == devJWTRefreshSecret {
			errs = append(errs, errors.New("development JWT secrets are not allowed in production"))
		}
		if c.Auth.JWTSecret != "" && c.Auth.JWTSecret == c.Auth.JWTRefreshSecret {
			errs = append(errs, errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
		}
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("bcrypt cost %d out of range [4, 31]", c.Auth.BcryptCost))
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.MinIO.Endpoint != "" && (c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "") {
		errs = append(errs, errors.New("minio endpoint set but MINIO_ROOT_USER / MINIO_ROOT_PASSWORD missing"))
	}
	return errors.Join(errs...)
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Driver: %s, DB: %s, Redis: %s, MinIO: %s}",
		c.Env, c.DatabaseDriver, maskPassword(c.DatabaseURL), maskPassword(c.RedisURL), c.MinIO.Endpoint)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
