package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Revocations remembers signed-out sessions until their tokens expire.
type Revocations interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

const revokedKeyPrefix = "auth:revoked:"

type RedisRevocations struct {
	redis  *redis.Client
	tracer trace.Tracer
	now    func() time.Time
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{
		redis:  client,
		tracer: otel.Tracer("kompressai.internal.auth"),
		now:    time.Now,
	}
}

func (r *RedisRevocations) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ctx, span := r.tracer.Start(ctx, "auth.revoke")
	defer span.End()

	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.redis.Set(ctx, revokedKeyPrefix+sessionID, "1", ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	return nil
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "auth.is_revoked")
	defer span.End()

	err := r.redis.Get(ctx, revokedKeyPrefix+sessionID).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		span.RecordError(err)
		return false, fmt.Errorf("auth: lookup revocation: %w", err)
	}
}

// MemoryRevocations is the single-process fallback used in development and tests.
type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{revoked: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, sessionID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = until
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.revoked, sessionID)
		return false, nil
	}
	return true, nil
}
