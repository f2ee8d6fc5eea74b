package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kompressai/portal/internal/auth"
	"github.com/kompressai/portal/pkg/logging"
)

type contextKey string

const prefsKey contextKey = "preferences"

// WithPreferences stores loaded preferences on ctx.
func WithPreferences(ctx context.Context, p Preferences) context.Context {
	return context.WithValue(ctx, prefsKey, p)
}

// FromContext returns the request's preferences, or Defaults when none were loaded.
func FromContext(ctx context.Context) Preferences {
	if p, ok := ctx.Value(prefsKey).(Preferences); ok {
		return p
	}
	return Defaults()
}

// Middleware loads the signed-in user's preferences once per request.
// It must run after auth.Middleware.
func Middleware(store Store, logger *logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrDefault(logger).Component("preferences")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := auth.FromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			prefs, err := store.Load(r.Context(), sess.UserID)
			if err != nil {
				logger.Warn("preferences: load failed, using defaults", "error", err, "user_id", sess.UserID)
				prefs = Defaults()
			}
			next.ServeHTTP(w, r.WithContext(WithPreferences(r.Context(), prefs)))
		})
	}
}

type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	return &Handler{store: store, logger: logging.OrDefault(logger).Component("preferences")}
}

// HandleGet returns the caller's preferences.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	prefs, err := h.store.Load(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Error("preferences: failed to load", "error", err, "user_id", sess.UserID)
		http.Error(w, "failed to load preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// HandlePatch applies a partial update.
func (h *Handler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var patch Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	current, err := h.store.Load(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Error("preferences: failed to load", "error", err, "user_id", sess.UserID)
		http.Error(w, "failed to load preferences", http.StatusInternalServerError)
		return
	}
	updated, err := current.Apply(patch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.Save(r.Context(), sess.UserID, updated); err != nil {
		if errors.Is(err, ErrInvalidPreference) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("preferences: failed to save", "error", err, "user_id", sess.UserID)
		http.Error(w, "failed to save preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleReset restores defaults.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.store.Delete(r.Context(), sess.UserID); err != nil {
		h.logger.Error("preferences: failed to reset", "error", err, "user_id", sess.UserID)
		http.Error(w, "failed to reset preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, Defaults())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
