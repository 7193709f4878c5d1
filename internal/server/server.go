// Package server provides the local HTTP server of neurablink.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/neurablink/internal/app"
	"github.com/ayusman/neurablink/internal/logging"
	"github.com/ayusman/neurablink/internal/server/api"
	"github.com/ayusman/neurablink/internal/store"
)

// Config holds the server configuration. Routes whose dependency is nil are not registered.
type Config struct {
	StaticDir string
	App       *app.App
	Store     *store.Store
	// StreamFPS caps the MJPEG preview rate. Zero selects DefaultStreamFPS.
	StreamFPS int
	Log       logrus.FieldLogger
}

// Server represents the HTTP server of the application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    logrus.FieldLogger
	hub    *Hub

	mu   sync.Mutex
	http *http.Server

	// base is the parent context of every request; cancelled on Shutdown
	// so that streaming handlers return.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    logging.OrDiscard(config.Log).WithField("component", "server"),
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.App != nil {
		detection := api.NewDetectionHandler(s.config.App)
		s.mux.Handle("/api/status", detection)
		s.mux.Handle("/api/detection/", detection)
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.App))

		s.mux.Handle("/api/stream", NewStreamHandler(s.config.App, s.config.StreamFPS))

		s.hub = NewHub(s.log)
		s.config.App.Subscribe(s.hub.Publish)
		s.mux.Handle("/api/events", s.hub)
	}

	if s.config.Store != nil {
		sessions := api.NewSessionHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := codec.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}
	s.mu.Lock()
	if s.base.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	s.http = srv
	s.mu.Unlock()
	s.log.WithField("addr", addr).Info("listening")

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes WebSocket clients and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
