package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tinoosan/loanledger/internal/scheduler"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if err := s.ready.Ready(ctx); err != nil {
		s.log.Warn("not ready", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// POST /v1/scheduler/run
func (s *Server) runScheduler(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeErr(w, http.StatusServiceUnavailable, "scheduler disabled", "scheduler_disabled")
		return
	}
	res, err := s.runner.RunOnce(r.Context())
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		writeErr(w, http.StatusConflict, err.Error(), "run_in_progress")
		return
	}
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toRunResponse(res))
}
