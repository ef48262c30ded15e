// Package web provides an HTTP status server for the treadmill-pod daemon.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/treadmill-pod/internal/history"
	"github.com/sweeney/treadmill-pod/internal/status"
)

// DefaultRunLimit is the number of runs /runs.json returns without ?limit.
const DefaultRunLimit = 20

// maxRunLimit caps ?limit.
const maxRunLimit = 500

// RunLister is the read side of the run history.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	runs       RunLister
}

// New creates a Server that reads state from the given tracker.
// runs may be nil when history is disabled.
func New(addr string, tracker *status.Tracker, runs RunLister) *Server {
	s := &Server{tracker: tracker, runs: runs}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/runs.json", s.handleRuns)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "run history disabled", http.StatusNotFound)
		return
	}

	limit := DefaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("web: list runs: %v", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatRuns(runs, snap.Config.SpeedUnit))
}
