package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompressai/portal/internal/notify"
	"github.com/kompressai/portal/internal/observability/metrics"
	"github.com/kompressai/portal/internal/projects"
	"github.com/kompressai/portal/pkg/logging"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.EmailMessage
	fail map[string]error
}

func (s *recordingSender) Send(_ context.Context, msg notify.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msg.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []notify.EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.EmailMessage(nil), s.sent...)
}

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(in.Body)
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	m.deleted = append(m.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fixture struct {
	handler *Handler
	sender  *recordingSender
	s3      *mockS3
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, mods ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		sender: &recordingSender{},
		s3:     &mockS3{},
		reg:    prometheus.NewRegistry(),
	}
	cfg := Config{
		Sender:      f.sender,
		Attachments: projects.NewStorage(f.s3, "files", "https://cdn.example.com", 0, nil),
		Inbox:       "team@kompressai.io",
		SiteURL:     "https://kompressai.io/",
		Metrics:     metrics.NewContactMetrics(f.reg),
		Logger:      logging.New("error"),
	}
	for _, mod := range mods {
		mod(&cfg)
	}
	f.handler = NewHandler(cfg)
	return f
}

func (f *fixture) post(t *testing.T, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/contact", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.handler.Submit(rec, req)
	return rec
}

func (f *fixture) postJSON(t *testing.T, req Request) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return f.post(t, "application/json", bytes.NewReader(body))
}

func (f *fixture) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	next:
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func contactForm(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func formFields() map[string]string {
	return map[string]string{
		"full_name":    "Ada Lovelace",
		"email":        "ada@example.com",
		"organization": "Analytical Engines",
		"subject":      "bug-report",
		"message":      "The optimized model crashes on the Jetson Nano.",
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSubmitJSONSendsInboxAndConfirmation(t *testing.T) {
	f := newFixture(t)

	rec := f.postJSON(t, validRequest())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "received", resp.Status)
	assert.True(t, resp.ConfirmationSent)
	assert.Empty(t, resp.AttachmentURL)

	msgs := f.sender.messages()
	require.Len(t, msgs, 2)

	inbox := msgs[0]
	assert.Equal(t, "team@kompressai.io", inbox.To)
	assert.Equal(t, "ada@example.com", inbox.ReplyTo)
	assert.Equal(t, "[Contact] Sales Inquiry from Ada Lovelace", inbox.Subject)
	assert.Contains(t, inbox.Body, resp.ID)
	assert.Contains(t, inbox.Body, "200k devices")

	confirm := msgs[1]
	assert.Equal(t, "ada@example.com", confirm.To)
	assert.Equal(t, "Ada Lovelace", confirm.ToName)
	assert.Contains(t, confirm.Body, "Reference: "+resp.ID)
	assert.Contains(t, confirm.Body, "https://kompressai.io\n")

	assert.Equal(t, 1.0, f.counter(t, "kompressai_contact_submissions_total", map[string]string{"subject": "sales", "status": "accepted"}))
	assert.Equal(t, 1.0, f.counter(t, "kompressai_contact_emails_total", map[string]string{"kind": "confirmation", "status": "sent"}))
}

func TestSubmitMultipartStoresAttachment(t *testing.T) {
	f := newFixture(t)

	body, ct := contactForm(t, formFields(), "trace.txt", "segfault at 0x0")
	rec := f.post(t, ct, body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.AttachmentURL, "https://cdn.example.com/files/attachments/"+resp.ID+"_"), resp.AttachmentURL)
	require.Len(t, f.s3.objects, 1)
	for key, content := range f.s3.objects {
		assert.True(t, strings.HasSuffix(key, ".txt"), key)
		assert.Equal(t, "segfault at 0x0", string(content))
	}

	msgs := f.sender.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Body, "Attachment: "+resp.AttachmentURL)
	assert.Contains(t, msgs[0].Body, "Organization: Analytical Engines")
	assert.Contains(t, msgs[0].Subject, "Bug Report")
}

func TestSubmitRejectsInvalidFields(t *testing.T) {
	f := newFixture(t)

	rec := f.postJSON(t, Request{Email: "ada@", Subject: "pricing", Message: "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, "Full name is required", out["error"])
	assert.Equal(t, map[string]any{
		"full_name": "Full name is required",
		"email":     "Please enter a valid email address",
		"subject":   "Please select a subject",
		"message":   "Message must be at least 10 characters long",
	}, out["fields"])
	assert.Empty(t, f.sender.messages())
	assert.Equal(t, 1.0, f.counter(t, "kompressai_contact_submissions_total", map[string]string{"subject": "unknown", "status": "invalid"}))
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)
	rec := f.post(t, "application/json", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.sender.messages())
}

func TestSubmitRejectsBadAttachment(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		maxBytes int64
		msg      string
	}{
		{"extension", "model.onnx", "bytes", 0, "Only PDF, TXT, PNG, and CSV files are allowed"},
		{"empty", "notes.txt", "", 0, "File is empty"},
		{"too large", "data.csv", strings.Repeat("x", 3<<19), 1 << 20, "File size must be less than 1MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *Config) { c.MaxAttachmentBytes = tt.maxBytes })
			body, ct := contactForm(t, formFields(), tt.filename, tt.content)

			rec := f.post(t, ct, body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			out := decode(t, rec)
			assert.Equal(t, tt.msg, out["error"])
			assert.Equal(t, map[string]any{"file": tt.msg}, out["fields"])
			assert.Empty(t, f.s3.objects)
			assert.Empty(t, f.sender.messages())
		})
	}
}

func TestSubmitAttachmentNeedsStorage(t *testing.T) {
	var storage *projects.Storage
	f := newFixture(t, func(c *Config) { c.Attachments = storage })

	body, ct := contactForm(t, formFields(), "trace.txt", "segfault")
	rec := f.post(t, ct, body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.sender.messages())

	// Without a file the form still goes through.
	body, ct = contactForm(t, formFields(), "", "")
	rec = f.post(t, ct, body)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestSubmitUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.s3.putErr = errors.New("bucket gone")

	body, ct := contactForm(t, formFields(), "trace.txt", "segfault")
	rec := f.post(t, ct, body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, f.sender.messages())
}

func TestSubmitInboxFailureRemovesAttachment(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = map[string]error{"team@kompressai.io": errors.New("smtp down")}

	body, ct := contactForm(t, formFields(), "trace.txt", "segfault")
	rec := f.post(t, ct, body)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	assert.Empty(t, f.s3.objects)
	require.Len(t, f.s3.deleted, 1)
	assert.True(t, strings.HasPrefix(f.s3.deleted[0], "attachments/"))
	assert.Empty(t, f.sender.messages(), "no confirmation after a failed delivery")
	assert.Equal(t, 1.0, f.counter(t, "kompressai_contact_emails_total", map[string]string{"kind": "inbox", "status": "failed"}))
}

func TestSubmitConfirmationFailureStillAccepted(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = map[string]error{"ada@example.com": errors.New("mailbox full")}

	rec := f.postJSON(t, validRequest())
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.ConfirmationSent)
	require.Len(t, f.sender.messages(), 1)
	assert.Equal(t, "team@kompressai.io", f.sender.messages()[0].To)
}

func TestSubmitWithoutInboxOnlyConfirms(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Inbox = "" })

	rec := f.postJSON(t, validRequest())
	require.Equal(t, http.StatusAccepted, rec.Code)
	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ada@example.com", msgs[0].To)
}

func TestNewHandlerDefaults(t *testing.T) {
	h := NewHandler(Config{MaxAttachmentBytes: 1 << 30})
	assert.Equal(t, projects.KindMaxBytes[projects.KindAttachment], h.maxBytes)
	assert.IsType(t, &notify.StubSender{}, h.sender)

	rec := httptest.NewRecorder()
	body, err := json.Marshal(validRequest())
	require.NoError(t, err)
	h.Submit(rec, httptest.NewRequest(http.MethodPost, "/contact", bytes.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
