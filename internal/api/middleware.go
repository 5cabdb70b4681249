package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/CareCheck/internal/auth"
	"github.com/BTreeMap/CareCheck/internal/models"
)

// authenticate verifies the bearer token and stores the principal in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			slog.Warn("Server.authenticate: missing token", "path", r.URL.Path)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Authentication required"))
			return
		}
		p, err := s.verifier.Verify(token)
		if err != nil {
			slog.Warn("Server.authenticate: invalid token", "path", r.URL.Path, "error", err)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// requireRole rejects principals without the given role.
func requireRole(role auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok || p.Role != role {
			slog.Warn("Server.requireRole: forbidden", "path", r.URL.Path, "required", role, "role", p.Role)
			writeJSONResponse(w, http.StatusForbidden, models.Error("Forbidden"))
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests logs every request with its status and duration.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("Server.request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
