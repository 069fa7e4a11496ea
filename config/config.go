package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/neon-saas/neon-gateway/internal/relay/service"
	"github.com/neon-saas/neon-gateway/internal/relay/staging"
)

type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Staging   StagingConfig
	Redis     RedisConfig
	S3        S3Config
	App       AppConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	MaxUploadMB  int64
	AllowOrigins []string
}

// BackendConfig describes the external processing backend. BaseURL is the
// backendBaseUrl option and is resolved once per process.
type BackendConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Delivery string
}

type StagingConfig struct {
	Dir           string
	Naming        string
	TTL           time.Duration
	SweepSchedule string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

type SecurityConfig struct {
	APIKey string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	stagingDir, err := resolveStagingDir(getEnv("STAGING_DIR", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			MaxUploadMB:  int64(getEnvAsInt("MAX_UPLOAD_MB", 50)),
			AllowOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Backend: BackendConfig{
			BaseURL:  strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://127.0.0.1:8000"), "/"),
			Timeout:  getEnvAsDuration("BACKEND_TIMEOUT", 5*time.Minute),
			Delivery: strings.ToLower(getEnv("BACKEND_DELIVERY", service.DeliveryPath)),
		},
		Staging: StagingConfig{
			Dir:           stagingDir,
			Naming:        strings.ToLower(getEnv("STAGING_NAMING", staging.NamingUnique)),
			TTL:           getEnvAsDuration("STAGING_TTL", time.Hour),
			SweepSchedule: getEnv("STAGING_SWEEP_SCHEDULE", "@every 10m"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		S3: S3Config{
			Bucket:   getEnv("S3_BUCKET", ""),
			Prefix:   strings.Trim(getEnv("S3_PREFIX", "uploads"), "/"),
			Region:   getEnv("S3_REGION", ""),
			Endpoint: getEnv("S3_ENDPOINT", ""),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Security: SecurityConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("RATE_LIMIT_RPS", 0),
			Burst: getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL %q is not an absolute URL", c.Backend.BaseURL)
	}

	switch c.Backend.Delivery {
	case service.DeliveryPath, service.DeliveryInline:
	case service.DeliveryObject:
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BACKEND_DELIVERY=object")
		}
	default:
		return fmt.Errorf("BACKEND_DELIVERY must be one of path, inline, object (got %q)", c.Backend.Delivery)
	}

	switch c.Staging.Naming {
	case staging.NamingUnique, staging.NamingOriginal:
	default:
		return fmt.Errorf("STAGING_NAMING must be unique or original (got %q)", c.Staging.Naming)
	}

	if c.Staging.TTL <= 0 {
		return fmt.Errorf("STAGING_TTL must be positive")
	}

	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}

	return nil
}

// MaxUploadBytes is the request body cap applied to multipart routes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

func resolveStagingDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return filepath.Join(wd, "temp_uploads"), nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve STAGING_DIR: %w", err)
	}
	return abs, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %v", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
