// Package diag serves a small local HTTP surface for health checks and
// on-device playback inspection.
package diag

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"slidekiosk/internal/playback"
)

// SnapshotFunc returns the current playback snapshot, or false when no
// session is live.
type SnapshotFunc func() (playback.Snapshot, bool)

// Server exposes /healthz and /api/status on a local listener.
type Server struct {
	snapshot SnapshotFunc
	log      zerolog.Logger
	srv      *http.Server
}

// NewServer builds a diagnostics server bound to addr, e.g. "127.0.0.1:8712".
func NewServer(addr string, snapshot SnapshotFunc, log zerolog.Logger) *Server {
	s := &Server{
		snapshot: snapshot,
		log:      log.With().Str("component", "diag").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in the background. Listen errors other than a clean shutdown
// are logged; a kiosk keeps playing without its diagnostics port.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn().Err(err).Msg("diagnostics server stopped")
		}
	}()
}

// Close shuts the listener down.
func (s *Server) Close() error {
	return s.srv.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshot()
	if !ok {
		http.Error(w, "no active session", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
