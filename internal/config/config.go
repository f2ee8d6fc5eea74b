package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	PublicBaseURL      string
	LogLevel           string
	LogFormat          string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Hosted auth provider token verification
	AuthJWTSecret  string
	AuthJWTIssuer  string
	AdminJWTSecret string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Project file uploads
	UploadBucket        string
	UploadPublicBaseURL string
	UploadMaxBytes      int64

	// Assistant chat
	ChatReplyDelayMin   time.Duration
	ChatReplyDelayMax   time.Duration
	ChatMaxInputRunes   int
	ChatSessionIdleTTL  time.Duration
	ChatTranscriptTTL   time.Duration
	ChatCleanupInterval time.Duration

	DashboardTickInterval time.Duration

	// Contact form and outbound email. SendGrid is used when an API key is
	// set, SES when only a from address is set, otherwise mail is logged.
	EmailFromAddress      string
	EmailFromName         string
	SendGridAPIKey        string
	ContactInbox          string
	ContactMaxBytes       int64
	ContactRateLimitRPS   float64
	ContactRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AuthJWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
		AuthJWTIssuer:  getEnv("AUTH_JWT_ISSUER", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		UploadBucket:        getEnv("UPLOAD_BUCKET", "files"),
		UploadPublicBaseURL: getEnv("UPLOAD_PUBLIC_BASE_URL", ""),
		UploadMaxBytes:      int64(getEnvAsInt("UPLOAD_MAX_BYTES", 50<<20)),

		ChatReplyDelayMin:   getEnvAsDuration("CHAT_REPLY_DELAY_MIN", time.Second),
		ChatReplyDelayMax:   getEnvAsDuration("CHAT_REPLY_DELAY_MAX", 2*time.Second),
		ChatMaxInputRunes:   getEnvAsInt("CHAT_MAX_INPUT_RUNES", 2000),
		ChatSessionIdleTTL:  getEnvAsDuration("CHAT_SESSION_IDLE_TTL", 30*time.Minute),
		ChatTranscriptTTL:   getEnvAsDuration("CHAT_TRANSCRIPT_TTL", 24*time.Hour),
		ChatCleanupInterval: getEnvAsDuration("CHAT_CLEANUP_INTERVAL", time.Minute),

		DashboardTickInterval: getEnvAsDuration("DASHBOARD_TICK_INTERVAL", 3*time.Second),

		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", "KompressAI"),
		SendGridAPIKey:        getEnv("SENDGRID_API_KEY", ""),
		ContactInbox:          getEnv("CONTACT_INBOX", ""),
		ContactMaxBytes:       int64(getEnvAsInt("CONTACT_MAX_BYTES", 10<<20)),
		ContactRateLimitRPS:   getEnvAsFloat("CONTACT_RATE_LIMIT_RPS", 0.2),
		ContactRateLimitBurst: getEnvAsInt("CONTACT_RATE_LIMIT_BURST", 3),
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding values already present in the environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
