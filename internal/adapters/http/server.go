// Package http exposes the host-facing operations over HTTP: starting,
// resuming, inspecting and cancelling runs, tool-server registration,
// and the Prometheus metrics endpoint.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systaxiecuador/hive/internal/logging"
	hiveruntime "github.com/systaxiecuador/hive/internal/runtime"
	"github.com/systaxiecuador/hive/pkg/broker"
	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/runner"
)

// Server wires the Runtime into an HTTP handler.
type Server struct {
	rt     *runner.Runtime
	logger *slog.Logger
}

// NewHandler builds the router for a Runtime.
func NewHandler(rt *runner.Runtime, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{rt: rt, logger: logger}

	r := chi.NewRouter()
	r.Post("/runs", s.createRun)
	r.Get("/runs", s.listRuns)
	r.Get("/runs/{id}", s.status)
	r.Post("/runs/{id}/resume", s.resume)
	r.Post("/runs/{id}/cancel", s.cancel)
	r.Get("/graph", s.graph)
	r.Get("/tools", s.listTools)
	r.Post("/tool-servers", s.registerServer)
	r.Delete("/tool-servers/{name}", s.unregisterServer)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type runRequest struct {
	Input map[string]any `json:"input"`
}

type runResponse struct {
	RunID     string          `json:"run_id"`
	State     domain.RunState `json:"state"`
	Outputs   map[string]any  `json:"outputs,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Steps     int             `json:"steps"`
	Path      []string        `json:"path,omitempty"`
	Payload   string          `json:"payload,omitempty"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.rt.Run(r.Context(), body.Input)
	if err != nil {
		s.logger.Error("run failed to commit", "err", err)
		http.Error(w, fmt.Sprintf("run error: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.rt.Resume(r.Context(), runID, body.Input)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("resume error: %v", err), http.StatusConflict)
		return
	}
	s.writeResult(w, res)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	st, err := s.rt.Status(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("status error: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.rt.Runs(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("list error: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if err := s.rt.Cancel(r.Context(), runID); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("cancel error: %v", err), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) graph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.rt.Graph())
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	writeJSON(w, map[string]any{"tools": s.rt.Broker().Tools(server)})
}

func (s *Server) registerServer(w http.ResponseWriter, r *http.Request) {
	var cfg broker.ServerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	tools, err := s.rt.RegisterToolServer(r.Context(), cfg)
	if err != nil {
		http.Error(w, fmt.Sprintf("register error: %v", err), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"tools": tools})
}

func (s *Server) unregisterServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.rt.UnregisterToolServer(name); err != nil {
		http.Error(w, fmt.Sprintf("unregister error: %v", err), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeResult(w http.ResponseWriter, res *hiveruntime.Result) {
	resp := runResponse{
		RunID:   res.RunID,
		State:   res.State,
		Outputs: res.Outputs,
		Steps:   res.Steps,
		Path:    res.Path,
	}
	if res.Failure != nil {
		resp.Error = res.Failure.Msg
		resp.ErrorKind = res.Failure.Kind
	}
	if res.Snapshot != nil {
		resp.Payload = res.Snapshot.PausePayload
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode error", "err", err)
	}
}
