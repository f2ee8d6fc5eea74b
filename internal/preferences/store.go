package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Store persists preferences per user. Load returns Defaults for unknown users.
type Store interface {
	Load(ctx context.Context, userID string) (Preferences, error)
	Save(ctx context.Context, userID string, prefs Preferences) error
	Delete(ctx context.Context, userID string) error
}

const keyPrefix = "preferences:"

type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		redis:  client,
		tracer: otel.Tracer("kompressai.internal.preferences"),
	}
}

func (s *RedisStore) Load(ctx context.Context, userID string) (Preferences, error) {
	if userID == "" {
		return Preferences{}, ErrUserRequired
	}
	ctx, span := s.tracer.Start(ctx, "preferences.load")
	defer span.End()

	raw, err := s.redis.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Defaults(), nil
	}
	if err != nil {
		span.RecordError(err)
		return Preferences{}, fmt.Errorf("preferences: failed to load: %w", err)
	}

	// start from defaults so fields added later keep sensible values
	prefs := Defaults()
	if err := json.Unmarshal(raw, &prefs); err != nil {
		span.RecordError(err)
		return Preferences{}, fmt.Errorf("preferences: failed to decode: %w", err)
	}
	return prefs, nil
}

func (s *RedisStore) Save(ctx context.Context, userID string, prefs Preferences) error {
	if userID == "" {
		return ErrUserRequired
	}
	if err := prefs.Validate(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "preferences.save")
	defer span.End()

	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("preferences: failed to encode: %w", err)
	}
	if err := s.redis.Set(ctx, keyPrefix+userID, data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("preferences: failed to save: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserRequired
	}
	if err := s.redis.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("preferences: failed to delete: %w", err)
	}
	return nil
}

// MemoryStore keeps preferences in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]Preferences)}
}

func (m *MemoryStore) Load(_ context.Context, userID string) (Preferences, error) {
	if userID == "" {
		return Preferences{}, ErrUserRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.prefs[userID]; ok {
		return p, nil
	}
	return Defaults(), nil
}

func (m *MemoryStore) Save(_ context.Context, userID string, prefs Preferences) error {
	if userID == "" {
		return ErrUserRequired
	}
	if err := prefs.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = prefs
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prefs, userID)
	return nil
}
