package chatbot

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scheduled struct {
	delay time.Duration
	fn    func()
}

// manualScheduler queues deferred turns until the test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	queue []scheduled
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scheduled{delay: d, fn: f})
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *manualScheduler) FireAll() []time.Duration {
	m.mu.Lock()
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()

	var delays []time.Duration
	for _, s := range queue {
		delays = append(delays, s.delay)
		s.fn()
	}
	return delays
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestConversation(t *testing.T, opts ...Option) (*Conversation, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	base := []Option{
		WithScheduler(sched),
		WithRand(seeded(11)),
	}
	return NewConversation(NewDefaultSelector(seeded(5)), append(base, opts...)...), sched
}

func TestNewConversationSeedsGreeting(t *testing.T) {
	conv, _ := newTestConversation(t)

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SenderBot, msgs[0].Sender)
	assert.Equal(t, Greeting, msgs[0].Text)
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, StateIdle, conv.State())
}

func TestSubmitAppendsUserThenBot(t *testing.T) {
	conv, sched := newTestConversation(t)

	msg, err := conv.Submit("What's the PRICING like?")
	require.NoError(t, err)
	assert.Equal(t, SenderUser, msg.Sender)
	assert.Equal(t, StateAwaitingReply, conv.State())
	require.Len(t, conv.Messages(), 2)
	require.Equal(t, 1, sched.Pending())

	sched.FireAll()

	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, SenderUser, msgs[1].Sender)
	assert.Equal(t, "What's the PRICING like?", msgs[1].Text)
	assert.Equal(t, SenderBot, msgs[2].Sender)
	assert.Equal(t, ruleReply(t, "pricing"), msgs[2].Text)
	assert.Equal(t, StateIdle, conv.State())
}

func TestSubmitBlankIsNoop(t *testing.T) {
	conv, sched := newTestConversation(t)

	for _, in := range []string{"", "   ", "\n\t "} {
		_, err := conv.Submit(in)
		assert.ErrorIs(t, err, ErrBlankInput)
	}
	assert.Len(t, conv.Messages(), 1)
	assert.Equal(t, StateIdle, conv.State())
	assert.Zero(t, sched.Pending())
}

func TestSubmitWhileAwaitingReplyRejected(t *testing.T) {
	conv, sched := newTestConversation(t)

	_, err := conv.Submit("who are the founders?")
	require.NoError(t, err)

	_, err = conv.Submit("pricing")
	assert.ErrorIs(t, err, ErrAwaitingReply)
	assert.Len(t, conv.Messages(), 2)
	assert.Equal(t, 1, sched.Pending())

	sched.FireAll()
	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, ruleReply(t, "founders"), msgs[2].Text, "pending reply must answer the first input")

	_, err = conv.Submit("pricing")
	require.NoError(t, err)
}

func TestSubmitMalformedAndTooLong(t *testing.T) {
	conv, _ := newTestConversation(t, WithMaxInputRunes(10))

	_, err := conv.Submit("bad \xff bytes")
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = conv.Submit(strings.Repeat("é", 11))
	assert.ErrorIs(t, err, ErrInputTooLong)

	_, err = conv.Submit(strings.Repeat("é", 10))
	assert.NoError(t, err)

	assert.Len(t, conv.Messages(), 2)
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	conv, sched := newTestConversation(t, WithClock(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))))

	for _, in := range []string{"hello", "api", "thanks"} {
		_, err := conv.Submit(in)
		require.NoError(t, err)
		sched.FireAll()
	}

	msgs := conv.Messages()
	require.Len(t, msgs, 7)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp), "message %d not after %d", i, i-1)
	}
}

func TestDelayWithinBounds(t *testing.T) {
	conv, sched := newTestConversation(t, WithDelay(time.Second, 2*time.Second))

	for i := 0; i < 50; i++ {
		_, err := conv.Submit("zzz")
		require.NoError(t, err)
		for _, d := range sched.FireAll() {
			assert.GreaterOrEqual(t, d, time.Second)
			assert.Less(t, d, 2*time.Second)
		}
	}
}

func TestDelayDegenerateRange(t *testing.T) {
	conv, sched := newTestConversation(t, WithDelay(500*time.Millisecond, 100*time.Millisecond))

	_, err := conv.Submit("hey")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sched.FireAll())
}

func TestListenerSeesEveryAppendInOrder(t *testing.T) {
	var events []Event
	conv, sched := newTestConversation(t, WithListener(func(ev Event) {
		events = append(events, ev)
	}))

	_, err := conv.Submit("api please")
	require.NoError(t, err)
	sched.FireAll()

	require.Len(t, events, 2)
	assert.Equal(t, SenderUser, events[0].Message.Sender)
	assert.Equal(t, StateAwaitingReply, events[0].State)
	assert.Equal(t, SenderBot, events[1].Message.Sender)
	assert.Equal(t, StateIdle, events[1].State)
	assert.Equal(t, "api", events[1].Rule)
	assert.Greater(t, events[1].Delay, time.Duration(0))
}

func TestMessagesReturnsSnapshot(t *testing.T) {
	conv, _ := newTestConversation(t)

	snap := conv.Messages()
	snap[0].Text = "mutated"
	assert.Equal(t, Greeting, conv.Messages()[0].Text)
}

func TestConcurrentSubmitTransitionsOnce(t *testing.T) {
	conv, sched := newTestConversation(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := conv.Submit("demo"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, sched.Pending())
	assert.Len(t, conv.Messages(), 2)
}

func TestRealSchedulerDeliversReply(t *testing.T) {
	conv := NewConversation(nil, WithDelay(time.Millisecond, 2*time.Millisecond))

	_, err := conv.Submit("thank you")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return conv.State() == StateIdle
	}, time.Second, 5*time.Millisecond)
	msgs := conv.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, ruleReply(t, "thanks"), msgs[2].Text)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_reply", StateAwaitingReply.String())
	assert.Equal(t, "unknown", State(9).String())
}
