package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starfielddb/starfielddb/pkg/engine"
)

// Server holds the HTTP interface and the underlying Engine.
type Server struct {
	Engine *engine.Engine

	httpServer *http.Server

	taskManager *TaskManager
	config      *Config
	authToken   string
}

// NewServer initializes the HTTP server using an existing Engine.
// Note: The Engine must be initialized (Open) before passing it here.
//
// configPath may be empty. A non-empty authToken overrides the one from the
// config file; if both are empty the API is unauthenticated.
func NewServer(eng *engine.Engine, httpAddr string, configPath string, authToken string) (*Server, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if authToken == "" {
		authToken = cfg.Server.AuthToken
	}

	s := &Server{
		Engine:      eng,
		taskManager: NewTaskManager(),
		config:      cfg,
		authToken:   authToken,
	}

	if err := s.ensureFields(); err != nil {
		return nil, err
	}

	// Setup HTTP
	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> Logging -> Auth -> Mux
	// Order matters! Recovery must be outer-most to catch everything.

	var handler http.Handler = mux

	// 1. Auth (Inner)
	handler = s.authMiddleware(handler)

	// 2. Logging (Middle) - Logs duration and status
	handler = s.LoggingMiddleware(handler)

	// 3. Recovery (Outer) - Catches panics
	handler = s.RecoveryMiddleware(handler)

	// Health and metrics stay outside auth so probes and scrapers need no
	// token.
	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	rootMux.Handle("/", handler)
	s.httpServer = &http.Server{
		Addr:    httpAddr,
		Handler: rootMux,
	}

	return s, nil
}

// ensureFields creates the fields declared in the configuration that do not
// exist yet. Fields restored from the manifest keep their state.
func (s *Server) ensureFields() error {
	for _, spec := range s.config.Fields {
		if spec.Name == "" {
			return errors.New("configuration declares a field without a name")
		}
		if _, err := s.Engine.Field(spec.Name); err == nil {
			continue
		}
		if _, err := s.Engine.CreateField(spec.Name, spec.Params()); err != nil {
			return fmt.Errorf("could not ensure declared field '%s': %w", spec.Name, err)
		}
	}
	return nil
}

// registerHTTPHandlers sets up the REST API routes.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /fields", s.handleCreateField)
	mux.HandleFunc("GET /fields", s.handleListFields)
	mux.HandleFunc("GET /fields/{name}", s.handleFieldInfo)
	mux.HandleFunc("DELETE /fields/{name}", s.handleDropField)
	mux.HandleFunc("POST /fields/{name}/regenerate", s.handleRegenerateField)
	mux.HandleFunc("GET /fields/{name}/positions", s.handleExportPositions)
	mux.HandleFunc("POST /fields/{name}/anchors", s.handleAssignAnchors)
	mux.HandleFunc("GET /fields/{name}/anchors", s.handleGetAnchors)
	mux.HandleFunc("POST /fields/{name}/pick", s.handlePick)
	mux.HandleFunc("GET /fields/{name}/selection", s.handleGetSelection)
	mux.HandleFunc("PUT /fields/{name}/selection", s.handleSetSelection)
	mux.HandleFunc("DELETE /fields/{name}/selection", s.handleClearSelection)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /system/save", s.handleSave)

	// Debug endpoints (pprof), behind auth like everything else.
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run() error {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server. It does NOT close the Engine (main.go
// handles that for proper lifecycle management).
func (s *Server) Shutdown() {
	log.Println("Starting graceful shutdown of HTTP Server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
