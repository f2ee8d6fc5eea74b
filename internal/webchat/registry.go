package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kompressai/portal/internal/chatbot"
)

// EventFunc receives every turn appended to any registered conversation.
type EventFunc func(sessionID string, ev chatbot.Event)

type entry struct {
	conv     *chatbot.Conversation
	lastUsed time.Time
}

// Registry owns one in-memory conversation per browser session. Conversations
// are never persisted; an evicted or unknown session starts over with a greeting.
type Registry struct {
	selector *chatbot.Selector
	opts     []chatbot.Option
	onEvent  EventFunc
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(selector *chatbot.Selector, onEvent EventFunc, opts ...chatbot.Option) *Registry {
	if selector == nil {
		selector = chatbot.NewDefaultSelector(nil)
	}
	return &Registry{
		selector: selector,
		opts:     opts,
		onEvent:  onEvent,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Create starts a new conversation under a fresh session id.
func (r *Registry) Create() (string, *chatbot.Conversation) {
	sessionID := generateSessionID()

	opts := append([]chatbot.Option(nil), r.opts...)
	if r.onEvent != nil {
		onEvent := r.onEvent
		opts = append(opts, chatbot.WithListener(func(ev chatbot.Event) {
			onEvent(sessionID, ev)
		}))
	}
	conv := chatbot.NewConversation(r.selector, opts...)

	r.mu.Lock()
	r.sessions[sessionID] = &entry{conv: conv, lastUsed: r.now()}
	r.mu.Unlock()
	return sessionID, conv
}

// Get returns the conversation for sessionID and marks it as used.
func (r *Registry) Get(sessionID string) (*chatbot.Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.conv, true
}

// Resolve returns the existing conversation or starts a new one when the id is
// empty or unknown.
func (r *Registry) Resolve(sessionID string) (string, *chatbot.Conversation, bool) {
	if sessionID != "" {
		if conv, ok := r.Get(sessionID); ok {
			return sessionID, conv, false
		}
	}
	id, conv := r.Create()
	return id, conv, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Cleanup evicts conversations idle for longer than maxAge. A pending bot turn
// still fires after eviction; its event is delivered to whoever is listening.
// Conversation state is read without holding the registry lock, so one stuck
// conversation cannot stall lookups of other sessions.
func (r *Registry) Cleanup(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	stale := make(map[string]*entry)
	for id, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			stale[id] = e
		}
	}
	r.mu.Unlock()

	removed := 0
	for id, e := range stale {
		if e.conv.State() != chatbot.StateIdle {
			continue
		}
		r.mu.Lock()
		if cur, ok := r.sessions[id]; ok && cur == e && e.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
		r.mu.Unlock()
	}
	return removed
}

// RunCleanup evicts idle sessions every interval until ctx is done.
func (r *Registry) RunCleanup(ctx context.Context, interval, maxAge time.Duration, after func(removed, remaining int)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.Cleanup(maxAge)
			if after != nil {
				after(removed, r.Len())
			}
		}
	}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}
