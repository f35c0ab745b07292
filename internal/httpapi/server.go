// Package httpapi exposes a small read-only status API for the reader
// daemon: who is inside right now, and a liveness probe.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/clock"
	"github.com/yktsnet/nfc-attendance-kit/internal/kintai/engine"
)

type Dependencies struct {
	Logger *log.Logger
	Addr   string
	Engine *engine.Engine
	Clock  *clock.Clock
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	engine     *engine.Engine
	clk        *clock.Clock
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger,
		engine: d.Engine,
		clk:    d.Clock,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusResponse struct {
	OK         bool                `json:"ok"`
	ServerTime string              `json:"server_time"`
	Count      int                 `json:"count"`
	Inside     []engine.InsideCard `json:"inside"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	inside := s.engine.InsideCards()
	if inside == nil {
		inside = []engine.InsideCard{}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		OK:         true,
		ServerTime: s.clk.Now().Format(time.RFC3339),
		Count:      len(inside),
		Inside:     inside,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
