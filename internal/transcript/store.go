// Package transcript archives chat turns in Redis for operator review.
// Archived transcripts are never used to restore a live conversation.
package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	keyPrefix          = "chat_transcript:"
	DefaultTTL         = 24 * time.Hour
	DefaultMaxMessages = 250
)

var ErrSessionRequired = errors.New("transcript: session id required")

// Entry is one archived turn.
type Entry struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"` // "user" or "bot"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Rule      string    `json:"rule,omitempty"`
}

type Store struct {
	redis       *redis.Client
	tracer      trace.Tracer
	ttl         time.Duration
	maxMessages int64
}

// NewStore returns nil when redisClient is nil; a nil Store is a no-op.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis:       redisClient,
		tracer:      otel.Tracer("kompressai.internal.transcript"),
		ttl:         ttl,
		maxMessages: DefaultMaxMessages,
	}
}

func (s *Store) Append(ctx context.Context, sessionID string, entry Entry) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return ErrSessionRequired
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("transcript: marshal entry: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "transcript.append",
		trace.WithAttributes(attribute.String("chat.sender", entry.Sender)))
	defer span.End()

	k := key(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, k, data)
	pipe.Expire(ctx, k, s.ttl)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, k, -s.maxMessages, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("transcript: append entry: %w", err)
	}
	return nil
}

// List returns the newest limit entries in append order; limit <= 0 returns all.
func (s *Store) List(ctx context.Context, sessionID string, limit int64) ([]Entry, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	ctx, span := s.tracer.Start(ctx, "transcript.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, key(sessionID), start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("transcript: list entries: %w", err)
	}

	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Delete purges the archived transcript of a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if sessionID == "" {
		return ErrSessionRequired
	}
	ctx, span := s.tracer.Start(ctx, "transcript.delete")
	defer span.End()
	if err := s.redis.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("transcript: delete: %w", err)
	}
	return nil
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}
