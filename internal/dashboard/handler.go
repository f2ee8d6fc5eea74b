package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kompressai/portal/internal/auth"
	"github.com/kompressai/portal/internal/preferences"
	"github.com/kompressai/portal/internal/projects"
	"github.com/kompressai/portal/pkg/logging"
)

// Response is the body of GET /dashboard.
type Response struct {
	Stats    Stats               `json:"stats"`
	Timeline []Month             `json:"timeline"`
	Live     Live                `json:"live"`
	Series   []Point             `json:"series"`
	Timezone string              `json:"timezone"`
	Projects []*projects.Project `json:"projects"`
}

type Handler struct {
	repo   projects.Repository
	sim    *Simulator
	now    func() time.Time
	logger *logging.Logger
}

func NewHandler(repo projects.Repository, sim *Simulator, logger *logging.Logger) *Handler {
	return &Handler{
		repo:   repo,
		sim:    sim,
		now:    time.Now,
		logger: logging.OrDefault(logger).Component("dashboard"),
	}
}

// HandleDashboard handles GET /dashboard
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.repo.ListByUser(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Error("failed to list projects", "error", err, "user_id", sess.UserID)
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*projects.Project{}
	}

	prefs := preferences.FromContext(r.Context())
	loc := prefs.Location()
	snap := h.sim.Snapshot()
	writeJSON(w, http.StatusOK, Response{
		Stats:    ComputeStats(list),
		Timeline: Timeline(list, h.now(), loc),
		Live:     snap.Live,
		Series:   snap.Series,
		Timezone: loc.String(),
		Projects: list,
	})
}

// HandleCompressed handles GET /projects/{projectID}/compressed. Only
// completed projects have a result.
func (h *Handler) HandleCompressed(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p, err := h.repo.GetByID(r.Context(), sess.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		if errors.Is(err, projects.ErrProjectNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load project", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if p.Status != projects.StatusCompleted {
		http.Error(w, "project is not completed", http.StatusConflict)
		return
	}
	ttl := preferences.FromContext(r.Context()).APIKeyTTL()
	writeJSON(w, http.StatusOK, h.sim.CompressedModel(p, ttl))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
