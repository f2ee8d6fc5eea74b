package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kompressai/portal/internal/notify"
	"github.com/kompressai/portal/internal/observability/metrics"
	"github.com/kompressai/portal/internal/projects"
	"github.com/kompressai/portal/pkg/logging"
)

const (
	attachmentField = "file"
	emailTimeout    = 10 * time.Second
)

// AttachmentStore is the part of projects.Storage the form needs.
type AttachmentStore interface {
	Enabled() bool
	Upload(ctx context.Context, kind projects.FileKind, userID, filename string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

// Config wires a Handler.
type Config struct {
	Sender      notify.EmailSender
	Attachments AttachmentStore
	// Inbox receives every accepted inquiry. Without one, inquiries are only logged.
	Inbox string
	// SiteURL is linked from the confirmation email.
	SiteURL            string
	MaxAttachmentBytes int64
	Metrics            *metrics.ContactMetrics
	Logger             *logging.Logger
}

// Handler serves POST /contact.
type Handler struct {
	sender      notify.EmailSender
	attachments AttachmentStore
	inbox       string
	siteURL     string
	maxBytes    int64
	metrics     *metrics.ContactMetrics
	logger      *logging.Logger
	now         func() time.Time
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		sender:      cfg.Sender,
		attachments: cfg.Attachments,
		inbox:       strings.TrimSpace(cfg.Inbox),
		siteURL:     strings.TrimRight(cfg.SiteURL, "/"),
		maxBytes:    cfg.MaxAttachmentBytes,
		metrics:     cfg.Metrics,
		logger:      logging.OrDefault(cfg.Logger).Component("contact"),
		now:         time.Now,
	}
	if h.sender == nil {
		h.sender = notify.NewStubSender(cfg.Logger)
	}
	if limit := projects.KindMaxBytes[projects.KindAttachment]; h.maxBytes <= 0 || h.maxBytes > limit {
		h.maxBytes = limit
	}
	return h
}

// SubmitResponse acknowledges an accepted inquiry.
type SubmitResponse struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	ConfirmationSent bool   `json:"confirmation_sent"`
	AttachmentURL    string `json:"attachment_url,omitempty"`
}

// Submit handles POST /contact as a multipart form (with an optional "file")
// or a JSON body.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var (
		req Request
		fh  *multipart.FileHeader
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
		if err := r.ParseMultipartForm(h.maxBytes + (1 << 20)); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.rejectFile(w, req.Subject, projects.ErrFileTooLarge)
				return
			}
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()
		req = Request{
			FullName:     r.FormValue("full_name"),
			Email:        r.FormValue("email"),
			Organization: r.FormValue("organization"),
			Subject:      Subject(r.FormValue("subject")),
			Message:      r.FormValue("message"),
		}
		if files := r.MultipartForm.File[attachmentField]; len(files) > 0 {
			fh = files[0]
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := req.Validate(); err != nil {
		h.metrics.ObserveSubmission(metricSubject(req.Subject), "invalid")
		var verr ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr[0].Message, "fields": verr.Fields()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	inquiry := Inquiry{ID: uuid.NewString(), Request: req, ReceivedAt: h.now().UTC()}

	if fh != nil {
		if err := projects.ValidateUpload(projects.KindAttachment, fh.Filename, fh.Size, h.maxBytes); err != nil {
			h.rejectFile(w, req.Subject, err)
			return
		}
		if h.attachments == nil || !h.attachments.Enabled() {
			h.metrics.ObserveSubmission(metricSubject(req.Subject), "unavailable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": projects.ErrStorageUnavailable.Error()})
			return
		}
		url, err := h.storeAttachment(r.Context(), inquiry.ID, fh)
		if err != nil {
			h.metrics.ObserveSubmission(metricSubject(req.Subject), "error")
			h.logger.Error("attachment upload failed", "error", err, "inquiry_id", inquiry.ID)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "file upload failed"})
			return
		}
		inquiry.AttachmentURL = url
	}

	ctx, cancel := context.WithTimeout(r.Context(), emailTimeout)
	defer cancel()

	if h.inbox != "" {
		if err := h.sender.Send(ctx, inboxEmail(h.inbox, inquiry)); err != nil {
			h.metrics.ObserveEmail("inbox", "failed")
			h.metrics.ObserveSubmission(metricSubject(req.Subject), "error")
			h.logger.Error("failed to deliver inquiry", "error", err, "inquiry_id", inquiry.ID)
			h.removeAttachment(inquiry.AttachmentURL)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "failed to deliver message"})
			return
		}
		h.metrics.ObserveEmail("inbox", "sent")
	}

	confirmed := true
	if err := h.sender.Send(ctx, confirmationEmail(inquiry, h.siteURL)); err != nil {
		confirmed = false
		h.metrics.ObserveEmail("confirmation", "failed")
		h.logger.Warn("failed to send confirmation", "error", err, "inquiry_id", inquiry.ID)
	} else {
		h.metrics.ObserveEmail("confirmation", "sent")
	}

	h.metrics.ObserveSubmission(metricSubject(req.Subject), "accepted")
	h.logger.Info("contact inquiry received",
		"inquiry_id", inquiry.ID,
		"subject", req.Subject,
		"email", req.Email,
		"has_attachment", inquiry.AttachmentURL != "",
	)
	writeJSON(w, http.StatusAccepted, SubmitResponse{
		ID:               inquiry.ID,
		Status:           "received",
		ConfirmationSent: confirmed,
		AttachmentURL:    inquiry.AttachmentURL,
	})
}

func (h *Handler) rejectFile(w http.ResponseWriter, subject Subject, err error) {
	h.metrics.ObserveSubmission(metricSubject(subject), "invalid")
	msg := "Only PDF, TXT, PNG, and CSV files are allowed"
	switch {
	case errors.Is(err, projects.ErrFileTooLarge):
		msg = fmt.Sprintf("File size must be less than %dMB", h.maxBytes>>20)
	case errors.Is(err, projects.ErrEmptyFile):
		msg = "File is empty"
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": msg, "fields": map[string]string{attachmentField: msg}})
}

func (h *Handler) storeAttachment(ctx context.Context, inquiryID string, fh *multipart.FileHeader) (string, error) {
	file, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	return h.attachments.Upload(ctx, projects.KindAttachment, inquiryID, fh.Filename, file, fh.Size, fh.Header.Get("Content-Type"))
}

func (h *Handler) removeAttachment(url string) {
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.attachments.Delete(ctx, url); err != nil {
		h.logger.Warn("failed to remove orphaned attachment", "error", err, "url", url)
	}
}

func inboxEmail(inbox string, in Inquiry) notify.EmailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Inquiry %s\n\n", in.ID)
	fmt.Fprintf(&b, "From: %s <%s>\n", in.Request.FullName, in.Request.Email)
	if in.Request.Organization != "" {
		fmt.Fprintf(&b, "Organization: %s\n", in.Request.Organization)
	}
	fmt.Fprintf(&b, "Subject: %s\n", in.Request.Subject.Label())
	fmt.Fprintf(&b, "Received: %s\n", in.ReceivedAt.Format(time.RFC3339))
	if in.AttachmentURL != "" {
		fmt.Fprintf(&b, "Attachment: %s\n", in.AttachmentURL)
	}
	fmt.Fprintf(&b, "\n%s\n", in.Request.Message)

	return notify.EmailMessage{
		To:      inbox,
		ReplyTo: in.Request.Email,
		Subject: fmt.Sprintf("[Contact] %s from %s", in.Request.Subject.Label(), in.Request.FullName),
		Body:    b.String(),
	}
}

func confirmationEmail(in Inquiry, siteURL string) notify.EmailMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", in.Request.FullName)
	b.WriteString("Thank you for reaching out to KompressAI. We've received your message and will get back to you within 24-48 hours.\n\n")
	fmt.Fprintf(&b, "Subject: %s\nReference: %s\n", in.Request.Subject.Label(), in.ID)
	if siteURL != "" {
		fmt.Fprintf(&b, "\nIn the meantime, our documentation is available at %s\n", siteURL)
	}
	b.WriteString("\nThe KompressAI team\n")

	return notify.EmailMessage{
		To:      in.Request.Email,
		ToName:  in.Request.FullName,
		Subject: "We received your message",
		Body:    b.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// metricSubject keeps free-form input out of metric labels.
func metricSubject(s Subject) string {
	if s.Valid() {
		return string(s)
	}
	return "unknown"
}
