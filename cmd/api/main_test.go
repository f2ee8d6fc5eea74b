package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kompressai/portal/internal/chatbot"
	appconfig "github.com/kompressai/portal/internal/config"
)

func TestSetupMetricsExposesChatMetrics(t *testing.T) {
	handler, chat, proj, contactMetrics := setupMetrics()
	if handler == nil || chat == nil || proj == nil || contactMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	chat.ObserveTurn("user")
	proj.ObserveCreated("GPU")
	contactMetrics.ObserveSubmission("sales", "accepted")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"kompressai_chat_turns_total", "kompressai_projects_created_total", "kompressai_contact_submissions_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s to be exported", name)
		}
	}
}

func TestChatOptionsApplyConfig(t *testing.T) {
	cfg := &appconfig.Config{
		ChatReplyDelayMin: 0,
		ChatReplyDelayMax: 0,
		ChatMaxInputRunes: 5,
	}
	var fired []func()
	sched := schedulerFunc(func(d time.Duration, f func()) {
		if d != 0 {
			t.Errorf("expected zero delay, got %s", d)
		}
		fired = append(fired, f)
	})
	conv := chatbot.NewConversation(chatbot.NewDefaultSelector(nil), append(chatOptions(cfg), chatbot.WithScheduler(sched))...)

	if _, err := conv.Submit("too long"); err != chatbot.ErrInputTooLong {
		t.Fatalf("expected ErrInputTooLong, got %v", err)
	}
	if _, err := conv.Submit("hey"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("expected one scheduled reply, got %d", len(fired))
	}
}

func TestNewServerTimeouts(t *testing.T) {
	srv := newServer(&appconfig.Config{Port: "9090"}, http.NotFoundHandler())
	if srv.Addr != ":9090" {
		t.Fatalf("unexpected addr %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout == 0 || srv.IdleTimeout == 0 {
		t.Fatalf("expected timeouts to be set")
	}
}

type schedulerFunc func(time.Duration, func())

func (f schedulerFunc) AfterFunc(d time.Duration, fn func()) { f(d, fn) }
