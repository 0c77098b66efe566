package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrQueueFull is returned when a run cannot be enqueued.
var ErrQueueFull = errors.New("run queue is full")

const queueSize = 16

// TaskRunner executes or skips a task; *Executor implements it.
type TaskRunner interface {
	Execute(ctx context.Context, task Task, trigger Trigger, scheduledAt time.Time) (*Run, error)
	Skip(ctx context.Context, task Task, trigger Trigger, scheduledAt time.Time, reason string) *Run
}

type dispatch struct {
	task        Task
	trigger     Trigger
	scheduledAt time.Time
	// firedAt is the cron callback time, or startup for catch-up runs.
	firedAt time.Time
}

// Scheduler fires the task catalogue on daily cron triggers in a fixed
// timezone. Cron callbacks only enqueue; a single worker runs jobs one at a
// time.
type Scheduler struct {
	runner   TaskRunner
	logger   *slog.Logger
	location *time.Location
	tasks    []Task

	cron    *cron.Cron
	entryMu sync.RWMutex
	entries map[string]cron.EntryID

	queue chan dispatch
	now   func() time.Time
}

// NewScheduler registers one cron entry per task.
func NewScheduler(runner TaskRunner, tasks []Task, logger *slog.Logger, location *time.Location) (*Scheduler, error) {
	if location == nil {
		location = time.Local
	}
	s := &Scheduler{
		runner:   runner,
		logger:   logger,
		location: location,
		tasks:    append([]Task(nil), tasks...),
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(location),
		),
		entries: make(map[string]cron.EntryID),
		queue:   make(chan dispatch, queueSize),
		now:     time.Now,
	}
	for _, task := range s.tasks {
		if err := s.scheduleTask(task); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", task.Name, err)
		}
	}
	return s, nil
}

// Start launches the worker, enqueues triggers that fired shortly before
// startup, and starts cron. The worker exits when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.work(ctx)
	s.enqueueCatchUp()
	s.cron.Start()
	for _, task := range s.tasks {
		next, _ := s.NextRun(task.Name)
		s.logger.Info("task scheduled", "task", task.Name, "title", task.Title, "at", task.At(), "next", next.Format(time.RFC3339))
	}
}

// Stop stops cron without waiting for in-flight jobs. The returned context
// is done once running cron callbacks return.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunStartup runs the check-in variant matching the current hour, then the
// daily report, synchronously.
func (s *Scheduler) RunStartup(ctx context.Context) {
	now := s.now().In(s.location)
	for _, name := range []string{CheckinTaskForHour(now.Hour()), TaskDailyReport} {
		task, err := FindTask(s.tasks, name)
		if err != nil {
			continue
		}
		s.logger.Info("running task on startup", "task", name)
		s.execute(ctx, dispatch{task: task, trigger: TriggerStartup, scheduledAt: now})
	}
}

// RunNow enqueues a manual run of the named task.
func (s *Scheduler) RunNow(name string) error {
	task, err := FindTask(s.tasks, name)
	if err != nil {
		return err
	}
	return s.enqueue(dispatch{task: task, trigger: TriggerManual, scheduledAt: s.now()})
}

// NextRun returns the next trigger time of the named task.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	id, ok := s.getEntryID(name)
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if !entry.Next.IsZero() {
		return entry.Next, true
	}
	if entry.Schedule == nil {
		return time.Time{}, false
	}
	return entry.Schedule.Next(s.now().In(s.location)), true
}

// Tasks returns the scheduled catalogue.
func (s *Scheduler) Tasks() []Task {
	return append([]Task(nil), s.tasks...)
}

// Location is the scheduler's timezone.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

func (s *Scheduler) scheduleTask(task Task) error {
	schedule, err := ParseCron(task.Cron())
	if err != nil {
		return err
	}
	job := func() { s.fire(task) }
	entryID := s.cron.Schedule(schedule, cron.FuncJob(job))
	s.setEntryID(task.Name, entryID)
	return nil
}

// fire enqueues a scheduled run for the trigger that just passed.
func (s *Scheduler) fire(task Task) {
	now := s.now().In(s.location)
	d := dispatch{
		task:        task,
		trigger:     TriggerSchedule,
		scheduledAt: lastTrigger(task, now, s.location),
		firedAt:     now,
	}
	if err := s.enqueue(d); err != nil {
		s.logger.Error("enqueue scheduled run", "task", task.Name, "err", err)
	}
}

// lastTrigger is the most recent trigger time of task at or before now.
func lastTrigger(task Task, now time.Time, loc *time.Location) time.Time {
	at := TodayAt(now, loc, task.Hour, task.Minute)
	if at.After(now) {
		at = at.AddDate(0, 0, -1)
	}
	return at
}

// enqueueCatchUp covers a scheduler that started within a task's grace
// window after today's trigger time.
func (s *Scheduler) enqueueCatchUp() {
	now := s.now()
	for _, task := range s.tasks {
		at := TodayAt(now, s.location, task.Hour, task.Minute)
		late := now.Sub(at)
		if late <= 0 || task.Grace <= 0 || late > task.Grace {
			continue
		}
		s.logger.Info("trigger fired before startup, catching up", "task", task.Name, "late", late.Round(time.Second))
		if err := s.enqueue(dispatch{task: task, trigger: TriggerCatchup, scheduledAt: at, firedAt: now}); err != nil {
			s.logger.Error("enqueue catch-up run", "task", task.Name, "err", err)
		}
	}
}

func (s *Scheduler) enqueue(d dispatch) error {
	select {
	case s.queue <- d:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.queue:
			s.handle(ctx, d)
		}
	}
}

// handle applies the grace window to timed triggers, then executes.
// Lateness is how long after the trigger time it fired, not when the worker
// got to it. A non-positive grace means no limit.
func (s *Scheduler) handle(ctx context.Context, d dispatch) {
	if d.trigger == TriggerSchedule || d.trigger == TriggerCatchup {
		late := d.firedAt.Sub(d.scheduledAt)
		if d.task.Grace > 0 && late > d.task.Grace {
			s.logger.Warn("run missed its grace window", "task", d.task.Name, "late", late.Round(time.Second), "grace", d.task.Grace)
			s.runner.Skip(ctx, d.task, d.trigger, d.scheduledAt, SkipMissedGrace)
			return
		}
	}
	s.execute(ctx, d)
}

func (s *Scheduler) execute(ctx context.Context, d dispatch) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "task", d.task.Name, "panic", r)
		}
	}()
	run, err := s.runner.Execute(ctx, d.task, d.trigger, d.scheduledAt)
	if err != nil {
		s.logger.Error("execute task", "task", d.task.Name, "err", err)
		return
	}
	if run != nil {
		s.logger.Info("task run finished", "task", d.task.Name, "run_id", run.ID, "status", string(run.Status))
	}
}

func (s *Scheduler) setEntryID(name string, entryID cron.EntryID) {
	s.entryMu.Lock()
	defer s.entryMu.Unlock()
	s.entries[name] = entryID
}

func (s *Scheduler) getEntryID(name string) (cron.EntryID, bool) {
	s.entryMu.RLock()
	defer s.entryMu.RUnlock()
	id, ok := s.entries[name]
	return id, ok
}
