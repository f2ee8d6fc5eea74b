package projects

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kompressai/portal/internal/auth"
	"github.com/kompressai/portal/internal/observability/metrics"
	"github.com/kompressai/portal/pkg/logging"
)

// formFiles maps multipart field names to their storage folder.
var formFiles = []struct {
	field string
	kind  FileKind
}{
	{"model", KindModel},
	{"dataset", KindDataset},
	{"evaluation", KindScript},
	{"preprocess", KindPreprocessing},
}

// Handler serves the project submission API.
type Handler struct {
	repo    Repository
	storage *Storage
	metrics *metrics.ProjectMetrics
	logger  *logging.Logger
}

// NewHandler creates a new projects handler. storage may be nil, in which
// case submissions carrying files are rejected.
func NewHandler(repo Repository, storage *Storage, m *metrics.ProjectMetrics, logger *logging.Logger) *Handler {
	return &Handler{
		repo:    repo,
		storage: storage,
		metrics: m,
		logger:  logging.OrDefault(logger).Component("projects"),
	}
}

// ListProjectsResponse is the response for listing projects
type ListProjectsResponse struct {
	Projects []*Project `json:"projects"`
	Count    int        `json:"count"`
}

// Create handles POST /projects. It accepts a multipart form with optional
// files or a plain JSON body.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		h.createMultipart(w, r, sess.UserID)
		return
	}

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request", "error", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.UserID = sess.UserID
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.insert(w, r, req.NewProject(Files{}), nil)
}

func (h *Handler) createMultipart(w http.ResponseWriter, r *http.Request, userID string) {
	maxBytes := h.storage.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, int64(len(formFiles))*maxBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
			return
		}
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	consent, _ := strconv.ParseBool(r.FormValue("data_consent"))
	req := CreateProjectRequest{
		UserID:            userID,
		Title:             r.FormValue("title"),
		Description:       r.FormValue("description"),
		DeploymentTarget:  r.FormValue("deployment_target"),
		OptimizationLevel: r.FormValue("optimization_level"),
		Criterion:         r.FormValue("criterion"),
		DataConsent:       consent,
		Status:            Status(r.FormValue("status")),
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Validate every file before the first upload so a bad file never
	// leaves orphans behind.
	headers := make(map[FileKind]*multipart.FileHeader, len(formFiles))
	for _, f := range formFiles {
		fh := firstFile(r.MultipartForm, f.field)
		if fh == nil {
			continue
		}
		if err := ValidateUpload(f.kind, fh.Filename, fh.Size, maxBytes); err != nil {
			h.metrics.ObserveUpload(string(f.kind), "rejected", fh.Size)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		headers[f.kind] = fh
	}
	if len(headers) > 0 && !h.storage.Enabled() {
		writeError(w, http.StatusServiceUnavailable, ErrStorageUnavailable)
		return
	}

	var uploaded []string
	urls := make(map[FileKind]*string, len(headers))
	for _, f := range formFiles {
		fh, ok := headers[f.kind]
		if !ok {
			continue
		}
		url, err := h.upload(r.Context(), f.kind, userID, fh)
		if err != nil {
			h.metrics.ObserveUpload(string(f.kind), "error", fh.Size)
			h.logger.Error("upload failed", "error", err, "kind", f.kind, "user_id", userID)
			h.cleanup(uploaded)
			writeError(w, http.StatusBadGateway, errors.New("file upload failed"))
			return
		}
		h.metrics.ObserveUpload(string(f.kind), "ok", fh.Size)
		uploaded = append(uploaded, url)
		urls[f.kind] = &url
	}

	p := req.NewProject(Files{
		Model:         urls[KindModel],
		Dataset:       urls[KindDataset],
		Evaluation:    urls[KindScript],
		Preprocessing: urls[KindPreprocessing],
	})
	h.insert(w, r, p, uploaded)
}

func (h *Handler) upload(ctx context.Context, kind FileKind, userID string, fh *multipart.FileHeader) (string, error) {
	file, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	return h.storage.Upload(ctx, kind, userID, fh.Filename, file, fh.Size, fh.Header.Get("Content-Type"))
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request, p *Project, uploaded []string) {
	created, err := h.repo.Create(r.Context(), p)
	if err != nil {
		h.logger.Error("failed to create project", "error", err)
		h.cleanup(uploaded)
		http.Error(w, "failed to create project", http.StatusInternalServerError)
		return
	}
	h.metrics.ObserveCreated(created.DeploymentTarget)
	h.logger.Info("project created", "id", created.ID, "user_id", created.UserID, "status", created.Status)
	writeJSON(w, http.StatusCreated, created)
}

// cleanup removes files stored for a submission that did not complete.
func (h *Handler) cleanup(urls []string) {
	if len(urls) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, u := range urls {
		if err := h.storage.Delete(ctx, u); err != nil {
			h.logger.Warn("failed to remove orphaned upload", "error", err, "url", u)
		}
	}
}

// List handles GET /projects
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	projects, err := h.repo.ListByUser(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Error("failed to list projects", "error", err)
		http.Error(w, "failed to list projects", http.StatusInternalServerError)
		return
	}
	if projects == nil {
		projects = []*Project{}
	}
	writeJSON(w, http.StatusOK, ListProjectsResponse{Projects: projects, Count: len(projects)})
}

// Get handles GET /projects/{projectID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p, err := h.repo.GetByID(r.Context(), sess.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.repoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PATCH /projects/{projectID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var upd UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := h.repo.Update(r.Context(), sess.UserID, chi.URLParam(r, "projectID"), upd)
	if err != nil {
		h.repoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /projects/{projectID}. Stored files are removed
// after the row; a failed file removal is logged and not surfaced.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "projectID")
	p, err := h.repo.GetByID(r.Context(), sess.UserID, id)
	if err != nil {
		h.repoError(w, err)
		return
	}
	if err := h.repo.Delete(r.Context(), sess.UserID, id); err != nil {
		h.repoError(w, err)
		return
	}
	if h.storage.Enabled() {
		h.cleanup(p.FileURLs())
	}
	h.logger.Info("project deleted", "id", id, "user_id", sess.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) repoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProjectNotFound):
		writeError(w, http.StatusNotFound, err)
	case IsValidation(err):
		writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("project repository error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	files := form.File[field]
	if len(files) == 0 || strings.TrimSpace(files[0].Filename) == "" {
		return nil
	}
	return files[0]
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
