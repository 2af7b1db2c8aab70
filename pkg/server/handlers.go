package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
	"github.com/ravi-parthasarathy/codecrew/pkg/store"
	"github.com/ravi-parthasarathy/codecrew/pkg/stream"
)

// runIDHeader carries the run id on both run endpoints.
const runIDHeader = "X-Run-ID"

// RunResponse is the aggregate endpoint's body. Summary is nil on failure.
type RunResponse struct {
	Success bool   `json:"success"`
	RunID   string `json:"runId,omitempty"`
	*stream.Summary
	Error string `json:"error,omitempty"`
}

// healthChecker is a store backed by a service that can be pinged.
type healthChecker interface {
	Health(ctx context.Context) error
}

// handleHealth answers ok, or 503 when the run store's backend is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if hc, ok := s.store.(healthChecker); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := hc.Health(ctx); err != nil {
			s.logger.Warn("run store unhealthy", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun runs the whole pipeline and answers once with every artifact.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r, false)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req.RunID = uuid.NewString()
	w.Header().Set(runIDHeader, req.RunID)

	out, err := s.runner.Run(r.Context(), req, nil)
	s.save(r.Context(), req, out, err)
	if err != nil {
		s.logger.Error("run failed", "run_id", req.RunID, "error", err)
		writeJSON(w, http.StatusInternalServerError, RunResponse{RunID: req.RunID, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{Success: true, RunID: req.RunID, Summary: stream.SummaryOf(out)})
}

// handleRunStream runs the pipeline and streams NDJSON events while it goes.
// Once the first byte is out the status is fixed at 200; failures travel as
// agent_error events.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req.RunID = uuid.NewString()
	h := w.Header()
	h.Set(runIDHeader, req.RunID)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	out, err := stream.NewEmitter(w, s.streamOpts).Run(r.Context(), s.runner, req)
	s.save(r.Context(), req, out, err)
	if err != nil {
		s.logger.Warn("stream ended with error", "run_id", req.RunID, "error", err)
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run " + id + " not found"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// save records a finished run. It outlives a client that has gone away, and
// a store failure only gets logged.
func (s *Server) save(ctx context.Context, req pipeline.Request, out *pipeline.Outcome, runErr error) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.store.Save(ctx, store.NewRecord(req, out, runErr)); err != nil {
		s.logger.Error("failed to save run", "run_id", req.RunID, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error()})
		return
	}
	s.logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
