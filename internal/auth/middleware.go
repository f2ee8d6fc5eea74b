package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kompressai/portal/pkg/logging"
)

// Middleware requires a valid session and stores it on the request context.
func Middleware(v *Verifier, logger *logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrDefault(logger).Component("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := v.Verify(r.Context(), BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				status := http.StatusUnauthorized
				if !errors.Is(err, ErrMissingToken) && !errors.Is(err, ErrInvalidToken) &&
					!errors.Is(err, ErrRevoked) && !errors.Is(err, ErrDisabled) {
					status = http.StatusServiceUnavailable
					logger.Error("auth: session verification failed", "error", err)
				}
				http.Error(w, http.StatusText(status), status)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// AdminJWT enforces an operator token signed with a separate HMAC secret
// and carrying the admin role.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			}
			raw := BearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			var claims Claims
			token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Role != RoleAdmin {
				http.Error(w, "admin role required", http.StatusForbidden)
				return
			}
			sess := Session{UserID: claims.Subject, Email: claims.Email, Role: claims.Role, SessionID: claims.ID}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// Handler exposes the session lifecycle endpoints.
type Handler struct {
	verifier *Verifier
	logger   *logging.Logger
}

func NewHandler(v *Verifier, logger *logging.Logger) *Handler {
	return &Handler{verifier: v, logger: logging.OrDefault(logger).Component("auth")}
}

// HandleSession returns the caller's session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess)
}

// HandleSignOut revokes the caller's session.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.verifier.SignOut(r.Context(), sess); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("auth: sign out failed", "error", err, "user_id", sess.UserID)
		http.Error(w, "failed to sign out", http.StatusInternalServerError)
		return
	}
	h.logger.Info("auth: signed out", "user_id", sess.UserID, "session_id", sess.SessionID)
	w.WriteHeader(http.StatusNoContent)
}
