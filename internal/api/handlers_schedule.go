package api

import (
	"net/http"
	"time"

	"daka/internal/core"
)

type nextTriggersResponse struct {
	Task      string   `json:"task"`
	Cron      string   `json:"cron"`
	Timezone  string   `json:"timezone"`
	NextTimes []string `json:"next_times"`
}

// handleNextTriggers previews the next trigger times of a task.
func (s *Server) handleNextTriggers(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	schedule, err := core.ParseCron(task.Cron())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid_cron", err.Error())
		return
	}

	count := parseIntDefault(r.URL.Query().Get("count"), 5)
	if count <= 0 || count > 10 {
		count = 5
	}
	base := time.Now().In(s.location)
	if raw := r.URL.Query().Get("now"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			base = parsed.In(s.location)
		}
	}

	times := core.NextOccurrences(schedule, base, count)
	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, t.In(s.location).Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, nextTriggersResponse{
		Task:      task.Name,
		Cron:      task.Cron(),
		Timezone:  s.location.String(),
		NextTimes: formatted,
	})
}
