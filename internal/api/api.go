// Package api provides the HTTP server and handlers for CareCheck.
//
// It exposes the survey authoring and assignment endpoints used by administrators and the
// task list and submission endpoints used by caregivers. Every request is authenticated
// with a bearer token and every response uses the models.APIResponse envelope.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/CareCheck/internal/assignment"
	"github.com/BTreeMap/CareCheck/internal/auth"
	"github.com/BTreeMap/CareCheck/internal/response"
	"github.com/BTreeMap/CareCheck/internal/store"
	"github.com/BTreeMap/CareCheck/internal/survey"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ShutdownTimeout = d
	}
}

// Deps are the services the server routes to.
type Deps struct {
	Store     store.Store
	Surveys   *survey.Service
	Tracker   *assignment.Tracker
	Responses *response.Service
	Verifier  *auth.Verifier
	Now       func() time.Time
}

// Server holds all dependencies for the API handlers.
type Server struct {
	st        store.Store
	surveys   *survey.Service
	tracker   *assignment.Tracker
	responses *response.Service
	verifier  *auth.Verifier
	now       func() time.Time
	opts      Opts
}

// NewServer creates a Server.
func NewServer(deps Deps, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, ShutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		st:        deps.Store,
		surveys:   deps.Surveys,
		tracker:   deps.Tracker,
		responses: deps.Responses,
		verifier:  deps.Verifier,
		now:       now,
		opts:      o,
	}
}

// Handler returns the routed handler with authentication and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	admin := func(h http.HandlerFunc) http.Handler { return s.authenticate(requireRole(auth.RoleAdmin, h)) }
	caregiver := func(h http.HandlerFunc) http.Handler { return s.authenticate(requireRole(auth.RoleCaregiver, h)) }
	anyone := func(h http.HandlerFunc) http.Handler { return s.authenticate(h) }

	mux.Handle("POST /surveys", admin(s.createSurveyHandler))
	mux.Handle("GET /surveys", admin(s.listSurveysHandler))
	mux.Handle("GET /surveys/{id}", anyone(s.getSurveyHandler))
	mux.Handle("PUT /surveys/{id}/questions", admin(s.saveQuestionsHandler))
	mux.Handle("POST /surveys/{id}/publish", admin(s.publishSurveyHandler))
	mux.Handle("POST /surveys/{id}/archive", admin(s.archiveSurveyHandler))
	mux.Handle("POST /surveys/{id}/assignments", admin(s.bulkAssignHandler))
	mux.Handle("GET /surveys/{id}/stats", admin(s.statsHandler))
	mux.Handle("DELETE /assignments/{id}", admin(s.cancelAssignmentHandler))
	mux.Handle("POST /check-ins/generate", admin(s.generateCheckInsHandler))
	mux.Handle("POST /check-ins/{id}/surveys", admin(s.linkCheckInHandler))

	mux.Handle("PUT /caregivers/{id}", admin(s.saveCaregiverHandler))
	mux.Handle("PUT /patients/{id}", admin(s.savePatientHandler))
	mux.Handle("PUT /caregivers/{id}/patients/{patientId}", admin(s.setCareLinkHandler))

	mux.Handle("GET /me/tasks", caregiver(s.tasksHandler))
	mux.Handle("GET /me/check-ins", caregiver(s.checkInsHandler))
	mux.Handle("GET /me/previous-response", caregiver(s.previousResponseHandler))
	mux.Handle("POST /assignments/{id}/responses", caregiver(s.submitAssignmentHandler))
	mux.Handle("POST /check-ins/{id}/responses", caregiver(s.submitCheckInHandler))

	return logRequests(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: shutdown failed", "error", err)
			return err
		}
		return nil
	}
}
