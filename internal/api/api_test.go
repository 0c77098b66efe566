package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daka/internal/config"
	"daka/internal/core"
	"daka/internal/logging"
	"daka/internal/store"
)

var shanghai = time.FixedZone("CST", 8*3600)

type fakeScheduler struct {
	tasks  []core.Task
	queued []string
	err    error
}

func (f *fakeScheduler) Tasks() []core.Task { return f.tasks }

func (f *fakeScheduler) NextRun(name string) (time.Time, bool) {
	task, err := core.FindTask(f.tasks, name)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(2026, 10, 20, task.Hour, task.Minute, 0, 0, shanghai), true
}

func (f *fakeScheduler) RunNow(name string) error {
	if f.err != nil {
		return f.err
	}
	f.queued = append(f.queued, name)
	return nil
}

type fakeRuns struct {
	runs []*core.Run
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (*core.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, store.ErrRunNotFound
}

func (f *fakeRuns) ListRuns(_ context.Context, task string, limit int) ([]*core.Run, error) {
	var out []*core.Run
	for _, r := range f.runs {
		if task == "" || r.Task == task {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeGate map[string]core.GateStatus

func (f fakeGate) Status(name string) core.GateStatus {
	st := f[name]
	st.Task = name
	return st
}

type fixture struct {
	scheduler *fakeScheduler
	runs      *fakeRuns
	handler   http.Handler
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	tasks := core.TasksFromSchedule(config.ScheduleConfig{
		MorningCheckin: config.TriggerTime{Hour: 8},
		EveningCheckin: config.TriggerTime{Hour: 17},
		DailyReport:    config.TriggerTime{Hour: 17, Minute: 30},
		Grace:          5 * time.Minute,
	})
	started := time.Date(2026, 10, 19, 17, 30, 5, 0, shanghai)
	msg := "AI report generation failed after 3 attempts"
	f := &fixture{
		scheduler: &fakeScheduler{tasks: tasks},
		runs: &fakeRuns{runs: []*core.Run{
			{ID: "run-2", Task: core.TaskDailyReport, Trigger: core.TriggerSchedule, Status: core.RunStatusFailed, ScheduledAt: started, StartedAt: &started, Error: &msg, CreatedAt: started},
			{ID: "run-1", Task: core.TaskMorningCheckin, Trigger: core.TriggerStartup, Status: core.RunStatusSucceeded, ScheduledAt: started, CreatedAt: started},
		}},
	}
	gate := fakeGate{core.TaskMorningCheckin: {RanToday: true}, core.TaskDailyReport: {LockFile: true, Held: true, PID: 4242}}
	srv := NewServer("127.0.0.1:0", token, f.runs, f.scheduler, gate, logging.Discard(), shanghai)
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, "secret")
	rec := f.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListTasks(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/v1/tasks")
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []taskResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tasks))
	require.Len(t, tasks, 3)

	assert.Equal(t, core.TaskMorningCheckin, tasks[0].Name)
	assert.Equal(t, "08:00", tasks[0].At)
	assert.Equal(t, "0 8 * * *", tasks[0].Cron)
	assert.True(t, tasks[0].RanToday)
	assert.Equal(t, 300, tasks[0].GraceSecs)

	report := tasks[2]
	assert.Equal(t, "30 17 * * *", report.Cron)
	assert.True(t, report.Locked)
	assert.Equal(t, 4242, report.LockPID)
	require.NotNil(t, report.NextRunAt)
	assert.Equal(t, "2026-10-20T17:30:00+08:00", *report.NextRunAt)
}

func TestGetUnknownTask(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/v1/tasks/weekly_report")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunTaskQueues(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/v1/tasks/daily_report/run")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{core.TaskDailyReport}, f.scheduler.queued)
}

func TestRunTaskQueueFull(t *testing.T) {
	f := newFixture(t, "")
	f.scheduler.err = core.ErrQueueFull
	rec := f.do(t, http.MethodPost, "/v1/tasks/daily_report/run")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListTaskRuns(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/v1/tasks/daily_report/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []runResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "failed", runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "3 attempts")
}

func TestGetRun(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/v1/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var run runResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
	assert.Equal(t, "startup", run.Trigger)
	assert.Nil(t, run.StartedAt)

	rec = f.do(t, http.MethodGet, "/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNextTriggers(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/v1/tasks/checkin_evening/next?count=2&now=2026-10-19T10:00:00%2B08:00")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp nextTriggersResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"2026-10-19T17:00:00+08:00", "2026-10-20T17:00:00+08:00"}, resp.NextTimes)
}

func TestAuth(t *testing.T) {
	f := newFixture(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/tasks").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/tasks", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/tasks", "Authorization", "Bearer secret").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/tasks?token=secret").Code)
}
