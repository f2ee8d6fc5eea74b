package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/kompressai/portal/internal/chatbot"
	httpmiddleware "github.com/kompressai/portal/internal/http/middleware"
	"github.com/kompressai/portal/internal/observability/metrics"
	"github.com/kompressai/portal/internal/transcript"
	"github.com/kompressai/portal/pkg/logging"
)

const (
	maxBodyBytes     = 64 << 10
	archiveTimeout   = 2 * time.Second
	archiveQueueSize = 1024
	defaultIdleTTL   = 30 * time.Minute
	defaultWriteWait = 10 * time.Second
	defaultOutbound  = 64
	transcriptLimit  = 250
	statusPending    = "pending"
	statusIgnored    = "ignored"
	frameSession     = "session"
	frameHistory     = "history"
	frameMessage     = "message"
	frameTyping      = "typing"
	frameIgnored     = "ignored"
	frameError       = "error"
	framePong        = "pong"
	frameFlush       = "flush" // internal marker, never sent
	inboundMessage   = "message"
	inboundPing      = "ping"
	reasonMalformed  = "malformed"
	reasonBlank      = "blank"
	reasonPending    = "awaiting_reply"
	reasonTooLong    = "too_long"
	reasonThrottled  = "rate_limited"
	reasonUnexpected = "unexpected"
)

// TranscriptStore archives chat turns for operator review.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, entry transcript.Entry) error
	List(ctx context.Context, sessionID string, limit int64) ([]transcript.Entry, error)
	Delete(ctx context.Context, sessionID string) error
}

// FrameLimiter decides whether a client may send another socket message.
type FrameLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// Config wires a Handler.
type Config struct {
	Selector            *chatbot.Selector
	ConversationOptions []chatbot.Option
	Transcript          TranscriptStore
	Metrics             *metrics.ChatMetrics
	Logger              *logging.Logger
	IdleTTL             time.Duration
	// WriteTimeout bounds each socket write; OutboundBuffer is the number of
	// frames queued per socket before a slow client is disconnected.
	WriteTimeout   time.Duration
	OutboundBuffer int
	// FrameLimiter throttles message frames per client IP (optional).
	FrameLimiter FrameLimiter
}

// Handler serves the assistant chat over HTTP and WebSocket.
type Handler struct {
	registry   *Registry
	transcript TranscriptStore
	metrics    *metrics.ChatMetrics
	logger     *logging.Logger
	idleTTL    time.Duration
	writeWait  time.Duration
	outbound   int
	frames     FrameLimiter

	mu    sync.RWMutex
	conns map[string]map[*wsConn]struct{} // sessionID -> open sockets

	archiveQ    chan archiveJob
	archiveDone chan struct{}
	stop        chan struct{}
	stopOnce    sync.Once
}

type archiveJob struct {
	sessionID string
	entry     transcript.Entry
}

// wsConn is one open socket. Frames go through out and are written by a
// single writer goroutine, so listeners never block on the network.
type wsConn struct {
	conn *websocket.Conn
	out  chan OutboundMessage
	done chan struct{}
	once sync.Once
}

func newWSConn(conn *websocket.Conn, buffer int) *wsConn {
	return &wsConn{conn: conn, out: make(chan OutboundMessage, buffer), done: make(chan struct{})}
}

// enqueue queues a frame without blocking. A full queue means the client
// stopped reading; the socket is closed.
func (c *wsConn) enqueue(msg OutboundMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		c.close()
		return false
	}
}

func (c *wsConn) close() {
	c.once.Do(func() { close(c.done) })
}

// InboundMessage is what the widget sends over the socket.
type InboundMessage struct {
	Type string          `json:"type"` // "message", "ping"
	Text json.RawMessage `json:"text,omitempty"`
}

// OutboundMessage is what we push to the widget.
type OutboundMessage struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	State     string            `json:"state,omitempty"`
	Typing    *bool             `json:"typing,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Text      string            `json:"text,omitempty"`
	Message   *chatbot.Message  `json:"message,omitempty"`
	Messages  []chatbot.Message `json:"messages,omitempty"`
}

// SessionResponse describes a conversation snapshot.
type SessionResponse struct {
	SessionID string            `json:"session_id"`
	State     string            `json:"state"`
	Messages  []chatbot.Message `json:"messages"`
}

// SubmitResponse is the HTTP result of a submit.
type SubmitResponse struct {
	Status    string           `json:"status"`
	SessionID string           `json:"session_id"`
	Reason    string           `json:"reason,omitempty"`
	Message   *chatbot.Message `json:"message,omitempty"`
}

// NewHandler creates a web chat handler with its own session registry.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		transcript: cfg.Transcript,
		metrics:    cfg.Metrics,
		logger:     logging.OrDefault(cfg.Logger).Component("webchat"),
		idleTTL:    cfg.IdleTTL,
		writeWait:  cfg.WriteTimeout,
		outbound:   cfg.OutboundBuffer,
		frames:     cfg.FrameLimiter,
		conns:      make(map[string]map[*wsConn]struct{}),
		stop:       make(chan struct{}),
	}
	if h.idleTTL <= 0 {
		h.idleTTL = defaultIdleTTL
	}
	if h.writeWait <= 0 {
		h.writeWait = defaultWriteWait
	}
	if h.outbound <= 0 {
		h.outbound = defaultOutbound
	}
	if h.transcript != nil {
		h.archiveQ = make(chan archiveJob, archiveQueueSize)
		h.archiveDone = make(chan struct{})
		go h.runArchiver()
	}
	h.registry = NewRegistry(cfg.Selector, h.onEvent, cfg.ConversationOptions...)
	return h
}

// Close stops the transcript archiver after flushing queued turns.
func (h *Handler) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
	if h.archiveDone != nil {
		<-h.archiveDone
	}
}

func (h *Handler) runArchiver() {
	defer close(h.archiveDone)
	for {
		select {
		case job := <-h.archiveQ:
			h.archive(job)
		case <-h.stop:
			for {
				select {
				case job := <-h.archiveQ:
					h.archive(job)
				default:
					return
				}
			}
		}
	}
}

func (h *Handler) archive(job archiveJob) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := h.transcript.Append(ctx, job.sessionID, job.entry); err != nil {
		h.logger.Warn("webchat: failed to archive turn", "error", err, "session_id", job.sessionID)
	}
}

func (h *Handler) enqueueArchive(job archiveJob) {
	select {
	case <-h.stop:
		return
	default:
	}
	select {
	case h.archiveQ <- job:
	default:
		h.logger.Warn("webchat: transcript queue full, dropping turn", "session_id", job.sessionID)
	}
}

// Registry exposes the session registry for background cleanup.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// RunCleanup evicts idle sessions until ctx is cancelled.
func (h *Handler) RunCleanup(ctx context.Context, interval time.Duration) {
	h.registry.RunCleanup(ctx, interval, h.idleTTL, func(removed, remaining int) {
		h.metrics.SetActiveSessions(remaining)
		if removed > 0 {
			h.logger.Debug("webchat: evicted idle sessions", "removed", removed, "remaining", remaining)
		}
	})
}

// onEvent pushes, archives and counts every appended turn. It runs while the
// conversation holds its notify lock and must not block.
func (h *Handler) onEvent(sessionID string, ev chatbot.Event) {
	msg := ev.Message
	h.metrics.ObserveTurn(string(msg.Sender))
	if msg.Sender == chatbot.SenderBot {
		h.metrics.ObserveReply(ev.Rule, ev.Delay.Seconds())
	}

	typing := ev.State == chatbot.StateAwaitingReply
	h.SendToSession(sessionID, OutboundMessage{
		Type:      frameMessage,
		SessionID: sessionID,
		State:     ev.State.String(),
		Message:   &msg,
	})
	h.SendToSession(sessionID, OutboundMessage{
		Type:      frameTyping,
		SessionID: sessionID,
		Typing:    &typing,
	})

	if h.transcript != nil {
		h.enqueueArchive(archiveJob{sessionID: sessionID, entry: transcript.Entry{
			ID:        msg.ID,
			Sender:    string(msg.Sender),
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
			Rule:      ev.Rule,
		}})
	}

	if msg.Sender == chatbot.SenderBot {
		h.logger.Info("webchat: reply sent", "session_id", sessionID, "rule", ev.Rule, "delay_ms", ev.Delay.Milliseconds())
	}
}

// IgnoredReason maps a submission error to a stable reason label.
func IgnoredReason(err error) string {
	switch {
	case errors.Is(err, chatbot.ErrBlankInput):
		return reasonBlank
	case errors.Is(err, chatbot.ErrAwaitingReply):
		return reasonPending
	case errors.Is(err, chatbot.ErrInputTooLong):
		return reasonTooLong
	case errors.Is(err, chatbot.ErrMalformedInput):
		return reasonMalformed
	default:
		return reasonUnexpected
	}
}

// submit decodes raw JSON text and hands it to the conversation. Non-string
// values are treated like malformed input.
func (h *Handler) submit(conv *chatbot.Conversation, raw json.RawMessage) (chatbot.Message, string) {
	var text string
	if len(raw) == 0 {
		h.metrics.ObserveIgnored(reasonBlank)
		return chatbot.Message{}, reasonBlank
	}
	if err := json.Unmarshal(raw, &text); err != nil {
		h.metrics.ObserveIgnored(reasonMalformed)
		return chatbot.Message{}, reasonMalformed
	}
	msg, err := conv.Submit(text)
	if err != nil {
		reason := IgnoredReason(err)
		h.metrics.ObserveIgnored(reason)
		return chatbot.Message{}, reason
	}
	return msg, ""
}

// HandleCreateSession starts a new conversation.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, conv := h.registry.Create()
	h.metrics.SetActiveSessions(h.registry.Len())
	writeJSON(w, http.StatusCreated, snapshot(sessionID, conv))
}

// HandleMessages returns the conversation snapshot.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conv, ok := h.registry.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snapshot(sessionID, conv))
}

// HandleSubmit is the HTTP path for sending a user turn.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	conv, ok := h.registry.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	var req struct {
		Text json.RawMessage `json:"text"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.ObserveIgnored(reasonTooLong)
			writeJSON(w, http.StatusOK, SubmitResponse{Status: statusIgnored, SessionID: sessionID, Reason: reasonTooLong})
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, reason := h.submit(conv, req.Text)
	if reason != "" {
		writeJSON(w, http.StatusOK, SubmitResponse{Status: statusIgnored, SessionID: sessionID, Reason: reason})
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{Status: statusPending, SessionID: sessionID, Message: &msg})
}

// HandleSuggestions lists the quick questions shown under the input box.
func (h *Handler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": chatbot.Suggestions})
}

// HandleTranscript returns the archived turns of a session for operators.
func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if h.transcript == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []transcript.Entry{}})
		return
	}
	entries, err := h.transcript.List(r.Context(), sessionID, transcriptLimit)
	if err != nil {
		h.logger.Error("webchat: failed to load transcript", "error", err, "session_id", sessionID)
		http.Error(w, "failed to load transcript", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleDeleteTranscript purges the archived turns of a session.
func (h *Handler) HandleDeleteTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if h.transcript != nil {
		if err := h.transcript.Delete(r.Context(), sessionID); err != nil {
			h.logger.Error("webchat: failed to delete transcript", "error", err, "session_id", sessionID)
			http.Error(w, "failed to delete transcript", http.StatusInternalServerError)
			return
		}
	}
	h.logger.Info("webchat: transcript purged", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	// server read/write timeouts still apply to the hijacked conn; writes get
	// their own deadline in writeLoop
	_ = conn.SetDeadline(time.Time{})

	clientIP := httpmiddleware.ClientIP(r)
	sessionID, conv, created := h.registry.Resolve(r.URL.Query().Get("session"))
	if created {
		h.metrics.SetActiveSessions(h.registry.Len())
	}

	// registered before the snapshot so no turn is missed; clients dedupe by message id
	wsc := newWSConn(conn, h.outbound)
	h.register(sessionID, wsc)
	defer h.unregister(sessionID, wsc)

	snap := snapshot(sessionID, conv)
	wsc.enqueue(OutboundMessage{Type: frameSession, SessionID: sessionID, State: snap.State})
	wsc.enqueue(OutboundMessage{Type: frameHistory, SessionID: sessionID, Messages: snap.Messages})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(sessionID, wsc)
	}()
	defer func() {
		wsc.close()
		<-writerDone
	}()

	h.logger.Info("webchat: connection opened", "session_id", sessionID, "new_session", created)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch msg.Type {
		case inboundPing:
			wsc.enqueue(OutboundMessage{Type: framePong})
		case inboundMessage:
			if _, ok := h.registry.Get(sessionID); !ok {
				wsc.enqueue(OutboundMessage{Type: frameError, Text: "session expired"})
				wsc.enqueue(OutboundMessage{Type: frameFlush})
				<-writerDone
				return
			}
			if h.frames != nil {
				if ok, _ := h.frames.Allow(clientIP); !ok {
					h.metrics.ObserveIgnored(reasonThrottled)
					wsc.enqueue(OutboundMessage{Type: frameIgnored, SessionID: sessionID, Reason: reasonThrottled})
					continue
				}
			}
			if _, reason := h.submit(conv, msg.Text); reason != "" {
				wsc.enqueue(OutboundMessage{Type: frameIgnored, SessionID: sessionID, Reason: reason})
			}
		}
	}
}

// writeLoop is the only writer on the socket. It closes the connection once
// the socket is done or a write fails.
func (h *Handler) writeLoop(sessionID string, wsc *wsConn) {
	defer func() {
		_ = wsc.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		_ = wsc.conn.Close()
	}()
	for {
		select {
		case <-wsc.done:
			return
		case msg := <-wsc.out:
			if msg.Type == frameFlush {
				wsc.close()
				return
			}
			_ = wsc.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := websocket.JSON.Send(wsc.conn, msg); err != nil {
				h.logger.Debug("webchat: push failed", "session_id", sessionID, "error", err)
				wsc.close()
				return
			}
		}
	}
}

func (h *Handler) register(sessionID string, wsc *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[sessionID]
	if !ok {
		set = make(map[*wsConn]struct{})
		h.conns[sessionID] = set
	}
	set[wsc] = struct{}{}
}

func (h *Handler) unregister(sessionID string, wsc *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[sessionID]
	delete(set, wsc)
	if len(set) == 0 {
		delete(h.conns, sessionID)
	}
}

// SendToSession pushes a frame to every socket open on the session.
func (h *Handler) SendToSession(sessionID string, msg OutboundMessage) {
	h.mu.RLock()
	targets := make([]*wsConn, 0, len(h.conns[sessionID]))
	for wsc := range h.conns[sessionID] {
		targets = append(targets, wsc)
	}
	h.mu.RUnlock()

	for _, wsc := range targets {
		if !wsc.enqueue(msg) {
			h.logger.Debug("webchat: dropped frame for slow or closed socket", "session_id", sessionID)
		}
	}
}

func snapshot(sessionID string, conv *chatbot.Conversation) SessionResponse {
	return SessionResponse{
		SessionID: sessionID,
		State:     conv.State().String(),
		Messages:  conv.Messages(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
