// Package server exposes the skillforge workflow over an HTTP JSON API. Each
// client works in its own session created through POST /api/sessions.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/presenter"
	"github.com/jingkaihe/skillforge/pkg/session"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
)

// maxBodyBytes bounds request bodies, attachments included
const maxBodyBytes = 32 << 20

// Server serves the HTTP API
type Server struct {
	router   *mux.Router
	manager  *session.Manager
	services *session.Services
	config   *Config
	server   *http.Server
}

// Config holds the configuration for the HTTP server
type Config struct {
	Host        string
	Port        int
	MaxSessions int
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// New creates a server over services
func New(services *session.Services, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}

	manager, err := session.NewManager(services, config.MaxSessions)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:   mux.NewRouter(),
		manager:  manager,
		services: services,
		config:   config,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	api.HandleFunc("/sessions/{id}/sop", s.handleSynthesize).Methods("POST")
	api.HandleFunc("/sessions/{id}/sop/revise", s.handleRevise).Methods("POST")
	api.HandleFunc("/sessions/{id}/sop/undo", s.handleUndo).Methods("POST")
	api.HandleFunc("/sessions/{id}/sop/diff", s.handleDiff).Methods("GET")

	api.HandleFunc("/sessions/{id}/skill", s.handleCompile).Methods("POST")
	api.HandleFunc("/sessions/{id}/skill/load", s.handleLoadSkill).Methods("POST")

	api.HandleFunc("/sessions/{id}/chat", s.handleInvoke).Methods("POST")
	api.HandleFunc("/sessions/{id}/chat", s.handleClearChat).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/export", s.handleExport).Methods("POST")

	api.HandleFunc("/skills", s.handleListSkills).Methods("GET")
	api.HandleFunc("/skills/{name}", s.handleGetSkill).Methods("GET")
	api.HandleFunc("/skills/{name}", s.handleDeleteSkill).Methods("DELETE")
	api.HandleFunc("/skills/{name}/skill.md", s.handleSkillMD).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	presenter.Info(fmt.Sprintf("Starting skillforge API on http://%s/api", address))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.G(ctx).WithError(err).Error("API server error")
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Close stops the server and releases the skill store
func (s *Server) Close() error {
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			return err
		}
	}
	if err := s.services.Close(); err != nil {
		return errors.Wrap(err, "failed to close skill store")
	}
	return nil
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return failure.Wrap(failure.KindValidation, "request", err, "invalid request body")
	}
	return nil
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode JSON response")
	}
}
