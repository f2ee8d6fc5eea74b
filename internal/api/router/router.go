package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kompressai/portal/internal/auth"
	"github.com/kompressai/portal/internal/contact"
	"github.com/kompressai/portal/internal/dashboard"
	httpmiddleware "github.com/kompressai/portal/internal/http/middleware"
	"github.com/kompressai/portal/internal/preferences"
	"github.com/kompressai/portal/internal/projects"
	"github.com/kompressai/portal/internal/webchat"
	"github.com/kompressai/portal/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *webchat.Handler
	AuthVerifier       *auth.Verifier
	AuthHandler        *auth.Handler
	PreferencesStore   preferences.Store
	PreferencesHandler *preferences.Handler
	ProjectsHandler    *projects.Handler
	DashboardHandler   *dashboard.Handler
	ContactHandler     *contact.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ChatRateLimiter throttles session creation, sockets and submissions per
	// client IP (optional).
	ChatRateLimiter *httpmiddleware.RateLimiter
	// ContactRateLimiter throttles contact form posts per client IP (optional).
	ContactRateLimiter *httpmiddleware.RateLimiter

	// DB is pinged by /ready when set.
	DB *sql.DB
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		public.Get("/ready", readyCheck(cfg.DB))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.ChatHandler != nil {
			limited := throttle(cfg.ChatRateLimiter)
			public.Route("/chat", func(chat chi.Router) {
				chat.Get("/suggestions", cfg.ChatHandler.HandleSuggestions)
				chat.With(limited).Get("/ws", cfg.ChatHandler.HandleWebSocket)
				chat.Route("/sessions", func(s chi.Router) {
					s.With(limited).Post("/", cfg.ChatHandler.HandleCreateSession)
					s.Get("/{sessionID}/messages", cfg.ChatHandler.HandleMessages)
					s.With(limited).Post("/{sessionID}/messages", cfg.ChatHandler.HandleSubmit)
				})
			})
		}
		if cfg.ContactHandler != nil {
			public.With(throttle(cfg.ContactRateLimiter)).Post("/contact", cfg.ContactHandler.Submit)
		}
	})

	// Signed-in user routes
	if cfg.AuthVerifier != nil {
		r.Group(func(user chi.Router) {
			user.Use(auth.Middleware(cfg.AuthVerifier, cfg.Logger))
			if cfg.PreferencesStore != nil {
				user.Use(preferences.Middleware(cfg.PreferencesStore, cfg.Logger))
			}

			if cfg.AuthHandler != nil {
				user.Get("/auth/session", cfg.AuthHandler.HandleSession)
				user.Post("/auth/signout", cfg.AuthHandler.HandleSignOut)
			}
			if cfg.PreferencesHandler != nil {
				user.Route("/me/preferences", func(p chi.Router) {
					p.Get("/", cfg.PreferencesHandler.HandleGet)
					p.Patch("/", cfg.PreferencesHandler.HandlePatch)
					p.Delete("/", cfg.PreferencesHandler.HandleReset)
				})
			}
			if cfg.ProjectsHandler != nil {
				user.Route("/projects", func(p chi.Router) {
					p.Post("/", cfg.ProjectsHandler.Create)
					p.Get("/", cfg.ProjectsHandler.List)
					p.Route("/{projectID}", func(one chi.Router) {
						one.Get("/", cfg.ProjectsHandler.Get)
						one.Patch("/", cfg.ProjectsHandler.Update)
						one.Delete("/", cfg.ProjectsHandler.Delete)
						if cfg.DashboardHandler != nil {
							one.Get("/compressed", cfg.DashboardHandler.HandleCompressed)
						}
					})
				})
			}
			if cfg.DashboardHandler != nil {
				user.Get("/dashboard", cfg.DashboardHandler.HandleDashboard)
			}
		})
	}

	// Operator routes
	if cfg.AdminAuthSecret != "" && cfg.ChatHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(auth.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/chat/{sessionID}/transcript", cfg.ChatHandler.HandleTranscript)
			admin.Delete("/chat/{sessionID}/transcript", cfg.ChatHandler.HandleDeleteTranscript)
		})
	}

	return r
}

// throttle returns the limiter's middleware, or a pass-through when nil.
func throttle(rl *httpmiddleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Middleware
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readyCheck(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "disabled"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
