package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr         string
	Environment  string
	LogLevel     string
	LogFormat    string
	WriteRetries int
	// MetricsToken guards /metrics when set.
	MetricsToken string

	JWT      JWTConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Blob     BlobConfig
	Audit    AuditConfig
	Limits   Limits
	Auth     RateLimitConfig
	Seed     SeedConfig
}

type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// DatabaseConfig selects Postgres; an empty URL runs on in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig selects the Redis revocation list; an empty URL falls back.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit stream when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// BlobConfig selects S3-compatible storage; empty Bucket uses the in-memory store.
type BlobConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	Folder        string
}

type AuditConfig struct {
	BufferSize       int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type Limits struct {
	ListPageSize   int
	TagLimit       int
	RecommendLimit int
	AuditLimit     int
	MaxUploadBytes int64
}

// RateLimitConfig bounds unauthenticated requests per client address.
type RateLimitConfig struct {
	Limit    int
	Window   time.Duration
	Disabled bool
}

// SeedConfig bootstraps a first region and admin on an empty deployment.
type SeedConfig struct {
	RegionName    string
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

func (s SeedConfig) Enabled() bool {
	return s.RegionName != "" && s.AdminEmail != "" && s.AdminPassword != ""
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:         envOr("KVAULT_ADDR", ":8080"),
		Environment:  envOr("KVAULT_ENV", "development"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		LogFormat:    envOr("LOG_FORMAT", "json"),
		WriteRetries: envInt("WRITE_RETRIES", 3),
		MetricsToken: os.Getenv("METRICS_TOKEN"),
		JWT: JWTConfig{
			SigningKey: envOr("JWT_SIGNING_KEY", devSigningKey),
			Issuer:     envOr("JWT_ISSUER", "kvault"),
			Audience:   envOr("JWT_AUDIENCE", "kvault-api"),
			TTL:        envDuration("JWT_TTL", 7*24*time.Hour),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     envBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    envList("KAFKA_BROKERS"),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "kvault.audit"),
		},
		Blob: BlobConfig{
			Endpoint:      os.Getenv("BLOB_ENDPOINT"),
			Region:        envOr("BLOB_REGION", "us-east-1"),
			Bucket:        os.Getenv("BLOB_BUCKET"),
			AccessKey:     os.Getenv("BLOB_ACCESS_KEY"),
			SecretKey:     os.Getenv("BLOB_SECRET_KEY"),
			PublicBaseURL: os.Getenv("BLOB_PUBLIC_BASE_URL"),
			Folder:        envOr("BLOB_FOLDER", "knowledge-vault"),
		},
		Audit: AuditConfig{
			BufferSize:       envInt("AUDIT_BUFFER_SIZE", 1024),
			BreakerThreshold: envInt("AUDIT_STREAM_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  envDuration("AUDIT_STREAM_BREAKER_COOLDOWN", 30*time.Second),
		},
		Limits: Limits{
			ListPageSize:   envInt("LIST_PAGE_SIZE", 200),
			TagLimit:       envInt("TAG_LIMIT", 100),
			RecommendLimit: envInt("RECOMMEND_LIMIT", 10),
			AuditLimit:     envInt("AUDIT_LIMIT", 200),
			MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 25<<20)),
		},
		Auth: RateLimitConfig{
			Limit:    envInt("AUTH_RATE_LIMIT", 10),
			Window:   envDuration("AUTH_RATE_WINDOW", time.Minute),
			Disabled: envBool("AUTH_RATE_LIMIT_DISABLED", false),
		},
		Seed: SeedConfig{
			RegionName:    os.Getenv("SEED_REGION"),
			AdminName:     envOr("SEED_ADMIN_NAME", "Administrator"),
			AdminEmail:    os.Getenv("SEED_ADMIN_EMAIL"),
			AdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations that would start an unsafe or broken server.
func (s Server) Validate() error {
	if s.Environment == "production" && s.JWT.SigningKey == devSigningKey {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	if s.JWT.TTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if s.WriteRetries < 1 {
		return fmt.Errorf("WRITE_RETRIES must be at least 1")
	}
	if s.Limits.ListPageSize < 1 || s.Limits.TagLimit < 1 || s.Limits.RecommendLimit < 1 || s.Limits.AuditLimit < 1 {
		return fmt.Errorf("list limits must be positive")
	}
	if !s.Auth.Disabled && (s.Auth.Limit < 1 || s.Auth.Window <= 0) {
		return fmt.Errorf("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be positive")
	}
	if s.Blob.Bucket != "" && s.Blob.Endpoint == "" && s.Blob.PublicBaseURL == "" {
		return fmt.Errorf("BLOB_ENDPOINT or BLOB_PUBLIC_BASE_URL is required when BLOB_BUCKET is set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
