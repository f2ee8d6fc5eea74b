package webchat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompressai/portal/internal/chatbot"
)

func TestRegistryCreateGetResolve(t *testing.T) {
	r := NewRegistry(nil, nil, chatbot.WithScheduler(&queueScheduler{}))

	id, conv := r.Create()
	got, ok := r.Get(id)
	require.True(t, ok)
	assert.Same(t, conv, got)

	sameID, same, created := r.Resolve(id)
	assert.False(t, created)
	assert.Equal(t, id, sameID)
	assert.Same(t, conv, same)

	newID, _, created := r.Resolve("unknown")
	assert.True(t, created)
	assert.NotEqual(t, "unknown", newID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryForwardsEventsWithSessionID(t *testing.T) {
	sched := &queueScheduler{}
	var mu sync.Mutex
	seen := map[string]int{}
	r := NewRegistry(nil, func(sessionID string, ev chatbot.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen[sessionID]++
	}, chatbot.WithScheduler(sched))

	id, conv := r.Create()
	_, err := conv.Submit("hello")
	require.NoError(t, err)
	sched.Flush()

	assert.Equal(t, 2, seen[id])
}

func TestRegistryCleanup(t *testing.T) {
	sched := &queueScheduler{}
	r := NewRegistry(nil, nil, chatbot.WithScheduler(sched))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	idle, _ := r.Create()
	busy, busyConv := r.Create()
	_, err := busyConv.Submit("pricing")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	fresh, _ := r.Create()

	removed := r.Cleanup(30 * time.Minute)
	assert.Equal(t, 1, removed, "only the idle stale session is evicted")

	_, ok := r.Get(idle)
	assert.False(t, ok)
	_, ok = r.Get(busy)
	assert.True(t, ok, "sessions awaiting a reply are kept")
	_, ok = r.Get(fresh)
	assert.True(t, ok)
}

func TestRegistryCleanupDoesNotStallOtherSessions(t *testing.T) {
	release := make(chan struct{})
	replying := make(chan struct{}, 1)
	r := NewRegistry(nil, func(_ string, ev chatbot.Event) {
		if ev.Message.Sender != chatbot.SenderBot {
			return
		}
		select {
		case replying <- struct{}{}:
		default:
		}
		<-release
	}, chatbot.WithDelay(0, 0))
	defer close(release)

	_, stuck := r.Create()
	otherID, _ := r.Create()

	_, err := stuck.Submit("hello")
	require.NoError(t, err)
	select {
	case <-replying:
	case <-time.After(2 * time.Second):
		t.Fatal("bot reply never started")
	}

	// a second submit now waits on the listener while holding the conversation lock
	go func() { _, _ = stuck.Submit("again") }()
	time.Sleep(20 * time.Millisecond)

	go r.Cleanup(time.Nanosecond)
	time.Sleep(20 * time.Millisecond)

	got := make(chan struct{})
	go func() {
		r.Get(otherID)
		r.Len()
		close(got)
	}()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("lookup of an unrelated session blocked behind a stalled conversation")
	}
}
