package chatbot

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// FallbackRule is the rule name reported when no trigger matched.
const FallbackRule = "fallback"

// Response is the reply picked for one user input.
type Response struct {
	Text string
	Rule string
}

// Selector picks a canned reply for free text using an ordered rule table.
// It is safe for concurrent use.
type Selector struct {
	rules     []Rule
	fallbacks []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector copies the rule table and fallback pool. Triggers are lower-cased
// once here so evaluation only normalizes the input.
func NewSelector(rules []Rule, fallbacks []string, rnd *rand.Rand) (*Selector, error) {
	if len(fallbacks) == 0 {
		return nil, errors.New("chatbot: at least one fallback reply is required")
	}
	copied := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if r.Reply == "" {
			return nil, fmt.Errorf("chatbot: rule %d (%s) has empty reply", i, r.Name)
		}
		triggers := make([]string, 0, len(r.Triggers))
		for _, trig := range r.Triggers {
			if trig = strings.ToLower(trig); trig != "" {
				triggers = append(triggers, trig)
			}
		}
		if len(triggers) == 0 {
			return nil, fmt.Errorf("chatbot: rule %d (%s) has no triggers", i, r.Name)
		}
		copied = append(copied, Rule{Name: r.Name, Triggers: triggers, Reply: r.Reply})
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{
		rules:     copied,
		fallbacks: append([]string(nil), fallbacks...),
		rnd:       rnd,
	}, nil
}

// NewDefaultSelector builds a Selector over the built-in FAQ table.
func NewDefaultSelector(rnd *rand.Rand) *Selector {
	s, err := NewSelector(DefaultRules, DefaultFallbacks, rnd)
	if err != nil {
		panic(err)
	}
	return s
}

// Match returns the first rule with a trigger contained in the lower-cased input.
func (s *Selector) Match(input string) (Rule, bool) {
	normalized := strings.ToLower(input)
	for _, r := range s.rules {
		for _, trig := range r.Triggers {
			if strings.Contains(normalized, trig) {
				return r, true
			}
		}
	}
	return Rule{}, false
}

// Respond always yields exactly one reply.
func (s *Selector) Respond(input string) Response {
	if r, ok := s.Match(input); ok {
		return Response{Text: r.Reply, Rule: r.Name}
	}
	s.mu.Lock()
	idx := s.rnd.IntN(len(s.fallbacks))
	s.mu.Unlock()
	return Response{Text: s.fallbacks[idx], Rule: FallbackRule}
}

// Reply is Respond without the rule name.
func (s *Selector) Reply(input string) string {
	return s.Respond(input).Text
}
