package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"daka/internal/core"
	"daka/internal/store"
)

type runResponse struct {
	ID          string  `json:"id"`
	Task        string  `json:"task"`
	Trigger     string  `json:"trigger"`
	Status      string  `json:"status"`
	ScheduledAt string  `json:"scheduled_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	EndedAt     *string `json:"ended_at,omitempty"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
		} else {
			s.logger.Error("get run", "run_id", runID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run")
		}
		return
	}
	writeJSON(w, http.StatusOK, s.runToResponse(run))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.writeRuns(w, r, "")
}

func (s *Server) writeRuns(w http.ResponseWriter, r *http.Request, task string) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	runs, err := s.runs.ListRuns(r.Context(), task, limit)
	if err != nil {
		s.logger.Error("list runs", "task", task, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}
	resp := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, s.runToResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runToResponse(run *core.Run) runResponse {
	format := func(t time.Time) string { return t.In(s.location).Format(time.RFC3339) }
	var started, ended *string
	if run.StartedAt != nil {
		formatted := format(*run.StartedAt)
		started = &formatted
	}
	if run.EndedAt != nil {
		formatted := format(*run.EndedAt)
		ended = &formatted
	}
	return runResponse{
		ID:          run.ID,
		Task:        run.Task,
		Trigger:     string(run.Trigger),
		Status:      string(run.Status),
		ScheduledAt: format(run.ScheduledAt),
		StartedAt:   started,
		EndedAt:     ended,
		Error:       run.Error,
		CreatedAt:   format(run.CreatedAt),
	}
}
