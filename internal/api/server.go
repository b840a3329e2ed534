// Package api exposes the engine over local HTTP for the desktop UI: range
// queries, settings, timer state, idle disposition and a live event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hourglass-app/hourglass/internal/engine"
	"github.com/hourglass-app/hourglass/internal/query"
	"github.com/hourglass-app/hourglass/internal/reporter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the local HTTP API server.
type Server struct {
	engine   *engine.Engine
	facade   *query.Facade
	reporter *reporter.Reporter
	hub      *Hub
	prompter *HubPrompter
	server   *http.Server
}

func NewServer(addr string, eng *engine.Engine, facade *query.Facade, rep *reporter.Reporter, hub *Hub, prompter *HubPrompter) *Server {
	s := &Server{
		engine:   eng,
		facade:   facade,
		reporter: rep,
		hub:      hub,
		prompter: prompter,
	}

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/activity-periods", s.handleActivityPeriods)
		r.Delete("/activity-periods", s.handleDeletePeriods)

		r.Get("/window-activities", s.handleWindowActivities)
		r.Get("/window-activities/stats", s.handleWindowActivityStats)
		r.Delete("/window-activities", s.handleDeleteWindowActivities)

		r.Get("/settings", s.handleGetSettings)
		r.Patch("/settings", s.handlePatchSettings)

		r.Post("/timer-state", s.handleTimerState)
		r.Post("/idle-disposition", s.handleIdleDisposition)

		r.Get("/report", s.handleReport)

		r.Get("/events", s.hub.HandleSSE)
	})

	return r
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	log.Printf("Starting API server on http://%s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops the server, bounded by ctx. SSE connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.server.Shutdown(ctx)
}

// GetAddress returns the listen address.
func (s *Server) GetAddress() string {
	return s.server.Addr
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a mutation-style error envelope.
func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	})
}

// writeSuccess writes the mutation success envelope.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
