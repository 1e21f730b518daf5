package config

import (
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// SecurityConfig holds the shared API credential and the optional
// network-origin allow-list for the protected endpoints.
type SecurityConfig struct {
	// APIKey is the bearer token the ERP integration must present.
	APIKey string
	// AllowedIPs, when non-empty, restricts protected endpoints to the listed
	// client addresses. An empty list disables the check.
	AllowedIPs []string
	// RateLimitPerMinute caps requests per client IP per minute. Zero or
	// negative disables the limiter.
	RateLimitPerMinute int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Port    string
	BaseURL string
	// MaxFileSize caps uploaded payloads, in bytes.
	MaxFileSize int64
	Database    DatabaseConfig
	MinIO       MinIOConfig
	Security    SecurityConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		Port:        getEnv("PORT", "8080"), // default only for non-sensitive value
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 50*1024*1024),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "contracts"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Security: SecurityConfig{
			APIKey:             getEnv("API_KEY", ""),
			AllowedIPs:         getEnvList("ALLOWED_IPS"),
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvList parses a comma-separated value, trimming whitespace and
// dropping empty entries.
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
