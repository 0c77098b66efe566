package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"daka/internal/core"
)

type taskResponse struct {
	Name      string  `json:"name"`
	Title     string  `json:"title"`
	Kind      string  `json:"kind"`
	Variant   string  `json:"variant,omitempty"`
	At        string  `json:"at"`
	Cron      string  `json:"cron"`
	GraceSecs int     `json:"grace_s"`
	NextRunAt *string `json:"next_run_at,omitempty"`
	RanToday  bool    `json:"ran_today"`
	Locked    bool    `json:"locked"`
	LockPID   int     `json:"lock_pid,omitempty"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.scheduler.Tasks()
	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, s.taskToResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.taskToResponse(task))
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.RunNow(task.Name); err != nil {
		if errors.Is(err, core.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "queue_full", err.Error())
			return
		}
		s.logger.Error("queue manual run", "task", task.Name, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to queue run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": true, "task": task.Name})
}

func (s *Server) handleListTaskRuns(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	s.writeRuns(w, r, task.Name)
}

func (s *Server) lookupTask(w http.ResponseWriter, r *http.Request) (core.Task, bool) {
	name := chi.URLParam(r, "name")
	task, err := core.FindTask(s.scheduler.Tasks(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return core.Task{}, false
	}
	return task, true
}

func (s *Server) taskToResponse(task core.Task) taskResponse {
	st := s.gate.Status(task.Name)
	resp := taskResponse{
		Name:      task.Name,
		Title:     task.Title,
		Kind:      string(task.Kind),
		Variant:   task.Variant,
		At:        task.At(),
		Cron:      task.Cron(),
		GraceSecs: int(task.Grace / time.Second),
		RanToday:  st.RanToday,
		Locked:    st.Held,
		LockPID:   st.PID,
	}
	if next, ok := s.scheduler.NextRun(task.Name); ok {
		formatted := next.In(s.location).Format(time.RFC3339)
		resp.NextRunAt = &formatted
	}
	return resp
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
