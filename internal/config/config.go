package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Credential transport modes. Real deployments have used both, so the
// transport is a configuration axis rather than a fork.
const (
	TransportCookie = "cookie"
	TransportBearer = "bearer"
)

// Config holds application configuration
type Config struct {
	Port          int
	Environment   string
	Database      DatabaseConfig
	JWT           JWTConfig
	AuthTransport string // "cookie" or "bearer"
	CORSOrigins   []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres or sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// JWTConfig holds the two independently-secret signing keys and their
// lifetimes. Access and refresh tokens never share a secret.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	env := getEnv("ENVIRONMENT", "production")

	cfg := &Config{
		Port:        getEnvInt("PORT", 8000),
		Environment: env,
		Database: DatabaseConfig{
			Type:         getEnv("DATABASE_TYPE", "postgres"),
			DSN:          getEnv("DATABASE_DSN", buildPostgresDSN()),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			AccessSecret:  loadSecret("JWT_SECRET", env),
			RefreshSecret: loadSecret("JWT_REFRESH_SECRET", env),
			AccessTTL:     getEnvExpiry("JWT_EXPIRES_IN", time.Hour),
			RefreshTTL:    getEnvExpiry("JWT_REFRESH_EXPIRES_IN", 7*24*time.Hour),
		},
		AuthTransport: getEnv("AUTH_TRANSPORT", TransportCookie),
		CORSOrigins:   loadCORSOrigins(env),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "linksaver")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "linksaver")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		for name, secret := range map[string]string{
			"JWT_SECRET":         c.JWT.AccessSecret,
			"JWT_REFRESH_SECRET": c.JWT.RefreshSecret,
		} {
			if len(secret) < 32 {
				return fmt.Errorf("%s must be at least 32 characters in production", name)
			}
			for _, insecure := range insecureSecrets {
				if secret == insecure {
					return fmt.Errorf("%s is set to an insecure default value. Please set a strong random secret", name)
				}
			}
		}
	}

	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if c.AuthTransport != TransportCookie && c.AuthTransport != TransportBearer {
		return fmt.Errorf("unsupported auth transport: %s", c.AuthTransport)
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	if c.Database.Type != "postgres" && c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	return nil
}

var insecureSecrets = []string{
	"change-this-secret-in-production",
	"change-me-in-production",
	"your-secret-key",
	"your-refresh-secret-key",
	"secret",
	"password",
	"changeme",
}

func loadSecret(key, env string) string {
	secret := os.Getenv(key)

	if secret == "" {
		if env == "production" {
			log.Fatalf("FATAL: %s environment variable is required in production", key)
		}

		log.Printf("WARNING: %s not set. Generating random secret for development.", key)
		log.Println("WARNING: This secret will change on restart. Set it in production!")
		return generateRandomSecret()
	}

	if len(secret) < 16 {
		log.Fatalf("FATAL: %s must be at least 16 characters long", key)
	}

	return secret
}

func loadCORSOrigins(env string) []string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return splitAndTrim(origins, ",")
	}

	if env == "development" {
		return []string{"http://localhost:3000", "http://localhost:8081"}
	}

	log.Println("WARNING: CORS_ORIGINS not set. Using default localhost origins.")
	return []string{"http://localhost:3000", "http://localhost:8081"}
}

// ParseExpiry parses token lifetime strings like "30s", "15m", "1h" or "7d".
// time.ParseDuration has no day unit, which the refresh TTL needs.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	unit := s[len(s)-1]
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch unit {
	case 's':
		return time.Duration(value) * time.Second, nil
	case 'm':
		return time.Duration(value) * time.Minute, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration unit: %q", string(unit))
	}
}

func getEnvExpiry(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	d, err := ParseExpiry(value)
	if err != nil {
		log.Printf("WARNING: invalid %s=%q, using default", key, value)
		return fallback
	}
	return d
}

func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		log.Fatal("Failed to generate random secret:", err)
	}
	return base64.URLEncoding.EncodeToString(bytes)
}
