package chatbot

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func ruleReply(t *testing.T, name string) string {
	t.Helper()
	for _, r := range DefaultRules {
		if r.Name == name {
			return r.Reply
		}
	}
	t.Fatalf("rule %q not found", name)
	return ""
}

func TestDefaultRulesTable(t *testing.T) {
	seen := make(map[string]bool)
	for i, r := range DefaultRules {
		require.NotEmpty(t, r.Name, "rule %d", i)
		require.NotEmpty(t, r.Reply, "rule %s", r.Name)
		require.NotEmpty(t, r.Triggers, "rule %s", r.Name)
		assert.False(t, seen[r.Name], "duplicate rule name %s", r.Name)
		seen[r.Name] = true
		for _, trig := range r.Triggers {
			assert.Equal(t, strings.ToLower(trig), trig, "trigger %q in %s must be lower case", trig, r.Name)
		}
	}
	assert.Len(t, DefaultFallbacks, 4)
	assert.Equal(t, "greeting", DefaultRules[0].Name)
	assert.Equal(t, "thanks", DefaultRules[len(DefaultRules)-1].Name)
}

func TestSelectorCaseInsensitiveMatch(t *testing.T) {
	s := NewDefaultSelector(seeded(1))
	want := ruleReply(t, "pricing")

	assert.Equal(t, want, s.Reply("pricing"))
	assert.Equal(t, want, s.Reply("What's the PRICING like?"))
	assert.Equal(t, want, s.Reply("is it FREE"))
}

func TestSelectorFounders(t *testing.T) {
	s := NewDefaultSelector(seeded(1))
	resp := s.Respond("Who are the founders?")
	assert.Equal(t, "founders", resp.Rule)
	assert.Equal(t, ruleReply(t, "founders"), resp.Text)
}

func TestSelectorFirstMatchWins(t *testing.T) {
	s := NewDefaultSelector(seeded(1))
	// contains both pricing and support triggers; pricing is listed first
	resp := s.Respond("need support with pricing")
	assert.Equal(t, "pricing", resp.Rule)

	// "hi" is a substring of "this", so the greeting rule shadows later ones
	resp = s.Respond("this demo")
	assert.Equal(t, "greeting", resp.Rule)
}

func TestSelectorSuggestionsResolve(t *testing.T) {
	s := NewDefaultSelector(seeded(1))
	expected := map[string]string{
		"What does KompressAI do?": "about",
		"How to submit project?":   "submit",
		"File requirements":        "fallback",
		"Pricing info":             "pricing",
		"Who are the founders?":    "founders",
		"API access":               "api",
	}
	for _, q := range Suggestions {
		want, ok := expected[q]
		require.True(t, ok, "unexpected suggestion %q", q)
		assert.Equal(t, want, s.Respond(q).Rule, q)
	}
}

func TestSelectorFallbackMembership(t *testing.T) {
	s := NewDefaultSelector(seeded(42))
	counts := make(map[string]int)
	for i := 0; i < 400; i++ {
		resp := s.Respond("zzz qqq")
		assert.Equal(t, FallbackRule, resp.Rule)
		assert.Contains(t, DefaultFallbacks, resp.Text)
		counts[resp.Text]++
	}
	assert.Len(t, counts, len(DefaultFallbacks), "every fallback should be chosen at least once")
}

func TestSelectorEmptyInputFallsBack(t *testing.T) {
	s := NewDefaultSelector(seeded(3))
	resp := s.Respond("")
	assert.Equal(t, FallbackRule, resp.Rule)
	assert.Contains(t, DefaultFallbacks, resp.Text)
}

func TestSelectorDeterministicWithSeed(t *testing.T) {
	a := NewDefaultSelector(seeded(7))
	b := NewDefaultSelector(seeded(7))
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Reply("zzz"), b.Reply("zzz"))
	}
}

func TestNewSelectorValidation(t *testing.T) {
	_, err := NewSelector(DefaultRules, nil, nil)
	require.Error(t, err)

	_, err = NewSelector([]Rule{{Name: "empty", Reply: "x"}}, []string{"f"}, nil)
	require.Error(t, err)

	_, err = NewSelector([]Rule{{Name: "noreply", Triggers: []string{"a"}}}, []string{"f"}, nil)
	require.Error(t, err)

	s, err := NewSelector([]Rule{{Name: "upper", Triggers: []string{"ONNX"}, Reply: "onnx"}}, []string{"f"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "onnx", s.Reply("export to onnx"))
}

func TestSelectorDoesNotAliasCallerTable(t *testing.T) {
	rules := []Rule{{Name: "a", Triggers: []string{"alpha"}, Reply: "A"}}
	fallbacks := []string{"F"}
	s, err := NewSelector(rules, fallbacks, seeded(1))
	require.NoError(t, err)

	rules[0].Reply = "changed"
	fallbacks[0] = "changed"
	assert.Equal(t, "A", s.Reply("alpha"))
	assert.Equal(t, "F", s.Reply("other"))
}
