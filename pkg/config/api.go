package config

import (
	"fmt"
	"net/url"
	"time"
)

// Storage drivers understood by the api binary.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
// A negative AuthRateLimit or UserRateLimit disables that limit.
type APIConfig struct {
	Environment            string
	Addr                   string
	StorageDriver          string
	DatabaseURL            string
	MigrationsDir          string
	JWTSecret              string
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	AllowedOrigin          string
	RateLimitRedisAddr     string
	RateLimitRedisPass     string
	RateLimitRedisDB       int
	KafkaBrokers           []string
	KafkaTopic             string
	RabbitMQURL            string
	RabbitMQQueue          string
	NotifyWebhookURL       string
	NotifyWebhookToken     string
	NotifyTimeout          time.Duration
	AdminBootstrapEmail    string
	AdminBootstrapPassword string
	MaxPageSize            int
	LogLevel               string
	AuthRateLimit          int
	UserRateLimit          int
	RateLimitWindow        time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:            GetString("APP_ENV", "development"),
		Addr:                   GetString("API_ADDR", ":4000"),
		StorageDriver:          GetString("STORAGE_DRIVER", StoragePostgres),
		DatabaseURL:            GetString("DATABASE_URL", databaseURLFromParts()),
		MigrationsDir:          GetString("DB_MIGRATIONS_DIR", ""),
		JWTSecret:              GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:         time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:        time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		AllowedOrigin:          GetString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		RateLimitRedisAddr:     GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:     GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:       GetInt("RATE_LIMIT_REDIS_DB", 0),
		KafkaBrokers:           GetList("KAFKA_BROKERS"),
		KafkaTopic:             GetString("KAFKA_TOPIC", "account-events"),
		RabbitMQURL:            GetString("RABBITMQ_URL", ""),
		RabbitMQQueue:          GetString("RABBITMQ_QUEUE", "account_notifications"),
		NotifyWebhookURL:       GetString("NOTIFY_WEBHOOK_URL", ""),
		NotifyWebhookToken:     GetString("NOTIFY_WEBHOOK_TOKEN", ""),
		NotifyTimeout:          time.Duration(GetInt("NOTIFY_TIMEOUT_SECONDS", 5)) * time.Second,
		AdminBootstrapEmail:    GetString("ADMIN_BOOTSTRAP_EMAIL", ""),
		AdminBootstrapPassword: GetString("ADMIN_BOOTSTRAP_PASSWORD", ""),
		MaxPageSize:            GetInt("PAGE_SIZE_MAX", 100),
		LogLevel:               GetString("LOG_LEVEL", "info"),
		AuthRateLimit:          GetInt("AUTH_RATE_LIMIT", 20),
		UserRateLimit:          GetInt("USER_RATE_LIMIT", 120),
		RateLimitWindow:        time.Duration(GetInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
	}
}

// databaseURLFromParts builds a PostgreSQL DSN from the discrete DB_* variables.
func databaseURLFromParts() string {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(GetString("DB_USER", "karoba"), GetString("DB_PASSWORD", "karoba")),
		Host:     fmt.Sprintf("%s:%s", GetString("DB_HOST", "localhost"), GetString("DB_PORT", "5432")),
		Path:     "/" + GetString("DB_NAME", "karoba"),
		RawQuery: "sslmode=" + GetString("DB_SSLMODE", "disable"),
	}
	return dsn.String()
}
