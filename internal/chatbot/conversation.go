package chatbot

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Submission errors. Hosts treat all of them as an ignored submit.
var (
	ErrBlankInput     = errors.New("chatbot: blank input")
	ErrAwaitingReply  = errors.New("chatbot: reply pending")
	ErrInputTooLong   = errors.New("chatbot: input too long")
	ErrMalformedInput = errors.New("chatbot: malformed input")
)

// State is the turn lifecycle state of a conversation.
type State int

const (
	// StateIdle accepts a new user turn.
	StateIdle State = iota
	// StateAwaitingReply rejects submissions until the bot turn lands.
	StateAwaitingReply
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	default:
		return "unknown"
	}
}

const (
	DefaultMinDelay      = time.Second
	DefaultMaxDelay      = 2 * time.Second
	DefaultMaxInputRunes = 2000
)

// Scheduler runs f once after d. The bot turn is never cancelled so the
// returned handle is not needed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

// Event describes one appended message. Rule and Delay are set for bot turns.
type Event struct {
	Message Message
	State   State
	Rule    string
	Delay   time.Duration
}

// Listener is invoked after every append, in append order, outside the
// conversation lock. It must not call Submit synchronously.
type Listener func(Event)

// Option configures a Conversation.
type Option func(*Conversation)

// WithScheduler replaces the timer used for the deferred bot turn.
func WithScheduler(s Scheduler) Option {
	return func(c *Conversation) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDelay bounds the randomized reply delay to [min, max).
func WithDelay(min, max time.Duration) Option {
	return func(c *Conversation) {
		if min < 0 {
			min = 0
		}
		if max < min {
			max = min
		}
		c.minDelay, c.maxDelay = min, max
	}
}

// WithRand injects the random source used for the reply delay.
func WithRand(rnd *rand.Rand) Option {
	return func(c *Conversation) {
		if rnd != nil {
			c.rnd = rnd
		}
	}
}

// WithMaxInputRunes caps accepted user input length.
func WithMaxInputRunes(n int) Option {
	return func(c *Conversation) {
		if n > 0 {
			c.maxRunes = n
		}
	}
}

// WithListener registers a hook called after each appended message.
func WithListener(l Listener) Option {
	return func(c *Conversation) {
		if l != nil {
			c.listeners = append(c.listeners, l)
		}
	}
}

// Conversation owns the ordered turns of one chat and its Idle/AwaitingReply
// state. Every conversation starts with a single bot greeting.
type Conversation struct {
	selector  *Selector
	scheduler Scheduler
	now       func() time.Time
	minDelay  time.Duration
	maxDelay  time.Duration
	maxRunes  int
	listeners []Listener

	mu       sync.Mutex
	rnd      *rand.Rand
	state    State
	pending  string
	messages []Message

	// held while listeners run so notifications keep append order
	notifyMu sync.Mutex
}

// NewConversation creates a conversation seeded with the greeting.
func NewConversation(selector *Selector, opts ...Option) *Conversation {
	if selector == nil {
		selector = NewDefaultSelector(nil)
	}
	c := &Conversation{
		selector:  selector,
		scheduler: timerScheduler{},
		now:       time.Now,
		minDelay:  DefaultMinDelay,
		maxDelay:  DefaultMaxDelay,
		maxRunes:  DefaultMaxInputRunes,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	c.messages = []Message{c.newMessage(SenderBot, Greeting)}
	return c
}

// Submit appends a user turn and schedules the bot turn. Blank, malformed or
// over-long input and submissions while a reply is pending are rejected
// without touching the conversation.
func (c *Conversation) Submit(text string) (Message, error) {
	if !utf8.ValidString(text) {
		return Message{}, ErrMalformedInput
	}
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrBlankInput
	}
	if utf8.RuneCountInString(text) > c.maxRunes {
		return Message{}, ErrInputTooLong
	}

	c.mu.Lock()
	if c.state == StateAwaitingReply {
		c.mu.Unlock()
		return Message{}, ErrAwaitingReply
	}
	msg := c.newMessage(SenderUser, text)
	c.messages = append(c.messages, msg)
	c.state = StateAwaitingReply
	c.pending = text
	delay := c.nextDelay()
	c.notifyMu.Lock()
	c.mu.Unlock()

	c.emit(Event{Message: msg, State: StateAwaitingReply})
	c.notifyMu.Unlock()

	c.scheduler.AfterFunc(delay, func() { c.deliver(delay) })
	return msg, nil
}

func (c *Conversation) deliver(delay time.Duration) {
	c.mu.Lock()
	if c.state != StateAwaitingReply {
		c.mu.Unlock()
		return
	}
	resp := c.selector.Respond(c.pending)
	msg := c.newMessage(SenderBot, resp.Text)
	c.messages = append(c.messages, msg)
	c.state = StateIdle
	c.pending = ""
	c.notifyMu.Lock()
	c.mu.Unlock()

	c.emit(Event{Message: msg, State: StateIdle, Rule: resp.Rule, Delay: delay})
	c.notifyMu.Unlock()
}

func (c *Conversation) emit(ev Event) {
	for _, l := range c.listeners {
		l(ev)
	}
}

// Messages returns a snapshot of the conversation in insertion order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// State reports whether a bot turn is pending.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// newMessage must be called with mu held (or before the conversation is shared).
func (c *Conversation) newMessage(sender Sender, text string) Message {
	ts := c.now()
	if n := len(c.messages); n > 0 {
		if last := c.messages[n-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Nanosecond)
		}
	}
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: ts,
	}
}

func (c *Conversation) nextDelay() time.Duration {
	span := c.maxDelay - c.minDelay
	if span <= 0 {
		return c.minDelay
	}
	return c.minDelay + time.Duration(c.rnd.Int64N(int64(span)))
}
