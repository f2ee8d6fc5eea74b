package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/kompressai/portal/internal/config"
	"github.com/kompressai/portal/internal/notify"
	"github.com/kompressai/portal/internal/preferences"
	"github.com/kompressai/portal/internal/projects"
	"github.com/kompressai/portal/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	logger = logging.OrDefault(logger)
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgres connects the pgx pool and a database/sql handle sharing it.
// Both are nil when no DATABASE_URL is configured.
func BuildPostgres(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, *sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	return pool, stdlib.OpenDBFromPool(pool), nil
}

// BuildProjectsRepository prefers Postgres and falls back to memory.
func BuildProjectsRepository(pool *pgxpool.Pool, logger *logging.Logger) projects.Repository {
	if pool != nil {
		return projects.NewPostgresRepository(pool)
	}
	logging.OrDefault(logger).Warn("DATABASE_URL not set; projects are kept in memory")
	return projects.NewInMemoryRepository()
}

// BuildPreferencesStore prefers Redis and falls back to memory.
func BuildPreferencesStore(redisClient *redis.Client, logger *logging.Logger) preferences.Store {
	if redisClient != nil {
		return preferences.NewRedisStore(redisClient)
	}
	logging.OrDefault(logger).Warn("redis unavailable; preferences are kept in memory")
	return preferences.NewMemoryStore()
}

// BuildUploadStorage wraps an S3 client for project files. It returns nil
// when no bucket is configured.
func BuildUploadStorage(client projects.S3API, cfg *appconfig.Config, logger *logging.Logger) *projects.Storage {
	if cfg == nil || strings.TrimSpace(cfg.UploadBucket) == "" {
		return nil
	}
	publicBase := cfg.UploadPublicBaseURL
	if publicBase == "" {
		publicBase = strings.TrimRight(cfg.AWSEndpointOverride, "/")
	}
	return projects.NewStorage(client, cfg.UploadBucket, publicBase, cfg.UploadMaxBytes, logger)
}

// BuildEmailSender picks SendGrid when an API key is set, then SES when a
// client and from address exist, and falls back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if cfg == nil {
		return notify.NewStubSender(logger)
	}
	from := strings.TrimSpace(cfg.EmailFromAddress)
	if from != "" && strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: from,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s
		}
	}
	if s := notify.NewSESSender(ses, notify.SESConfig{FromEmail: from, FromName: cfg.EmailFromName}, logger); s != nil {
		return s
	}
	logging.OrDefault(logger).Warn("no email provider configured; contact emails will only be logged")
	return notify.NewStubSender(logger)
}
