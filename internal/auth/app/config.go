package app

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/service"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
)

// DevSigningSecret signs tokens when JWT_SECRET is unset outside
// production. Tokens signed with it are only good for local development.
const DevSigningSecret = "authcore-development-secret-do-not-use-in-production"

// ErrMissingSecret stops a production process that has no JWT_SECRET.
var ErrMissingSecret = errors.New("JWT_SECRET must be set in production")

type Config struct {
	JWTSecret           string        // Signing secret; required in production
	TokenTTL            time.Duration // Lifetime of issued tokens (default: 168h)
	RefreshGrace        time.Duration // How long past expiry a token may be refreshed (default: 24h)
	AdminEmails         []string      // Accounts granted the admin role at startup
	DatabaseFile        string        // Path to SQLite database file (default: ./auth.db)
	Env                 string        // Environment (dev, staging, prod, production) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		JWTSecret:           os.Getenv("JWT_SECRET"),
		TokenTTL:            getEnvDurationOrDefault("AUTH_TOKEN_TTL", jwtx.DefaultTokenTTL),
		RefreshGrace:        getEnvDurationOrDefault("AUTH_REFRESH_GRACE", service.DefaultRefreshGrace),
		AdminEmails:         getEnvListOrDefault("AUTH_ADMIN_EMAILS", nil),
		DatabaseFile:        getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// IsProduction is true for ENV=prod or ENV=production.
func (c Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "prod", "production":
		return true
	}
	return false
}

// SigningSecret returns the token signing secret. Without JWT_SECRET a
// production config fails with ErrMissingSecret; any other environment
// logs a warning and falls back to DevSigningSecret.
func (c Config) SigningSecret(logger *slog.Logger) ([]byte, error) {
	if c.JWTSecret != "" {
		return []byte(c.JWTSecret), nil
	}
	if c.IsProduction() {
		return nil, ErrMissingSecret
	}
	logger.Warn("JWT_SECRET is not set, using the development secret", "env", c.Env)
	return []byte(DevSigningSecret), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
