package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"daka/internal/config"
	"daka/internal/notify"
)

// Store abstracts the run history used by the executor.
type Store interface {
	InsertRun(ctx context.Context, run *Run) error
	MarkRunCompleted(ctx context.Context, id string, status RunStatus, endedAt time.Time, errMsg *string) error
	PruneRuns(ctx context.Context, task string) error
}

// TaskGate is the lock and daily record the executor runs through; *Gate
// implements it.
type TaskGate interface {
	HasRunToday(name string) bool
	MarkRunToday(name string) error
	AcquireLock(name string) bool
	ReleaseLock(name string)
}

// Flow performs the browser work for a task.
type Flow interface {
	Run(ctx context.Context, task Task, creds config.Credentials) (Outcome, error)
}

// Executor runs a task through the gate, the flow and the notifier, and
// records the result.
type Executor struct {
	gate     TaskGate
	flow     Flow
	store    Store
	notifier notify.Notifier
	creds    config.Credentials
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

// NewExecutor creates a new executor.
func NewExecutor(gate TaskGate, flow Flow, store Store, notifier notify.Notifier, creds config.Credentials, logger *slog.Logger, location *time.Location) *Executor {
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}
	if location == nil {
		location = time.Local
	}
	return &Executor{
		gate:     gate,
		flow:     flow,
		store:    store,
		notifier: notifier,
		creds:    creds,
		logger:   logger,
		location: location,
		now:      time.Now,
	}
}

// Execute runs task once. It returns the recorded run and the flow error,
// if any. Missing credentials fail before anything touches the gate, the
// browser or the network.
func (e *Executor) Execute(ctx context.Context, task Task, trigger Trigger, scheduledAt time.Time) (*Run, error) {
	if err := e.creds.Validate(); err != nil {
		return nil, err
	}
	logger := e.logger.With("task", task.Name, "trigger", string(trigger))

	if e.gate.HasRunToday(task.Name) {
		return e.Skip(ctx, task, trigger, scheduledAt, SkipAlreadyCompleted), nil
	}
	if !e.gate.AcquireLock(task.Name) {
		return e.Skip(ctx, task, trigger, scheduledAt, SkipLocked), nil
	}
	defer e.gate.ReleaseLock(task.Name)
	// Another process may have finished the task between the check and the lock.
	if e.gate.HasRunToday(task.Name) {
		return e.Skip(ctx, task, trigger, scheduledAt, SkipAlreadyCompleted), nil
	}

	startedAt := e.now()
	run := &Run{
		ID:          NewID(),
		Task:        task.Name,
		Trigger:     trigger,
		Status:      RunStatusRunning,
		ScheduledAt: scheduledAt,
		StartedAt:   &startedAt,
	}
	if err := e.store.InsertRun(ctx, run); err != nil {
		logger.Warn("record run start", "err", err)
	}
	logger = logger.With("run_id", run.ID)
	logger.Info("task started", "title", task.Title, "local_time", startedAt.In(e.location).Format("2006-01-02 15:04:05"))

	outcome, flowErr := e.runFlow(ctx, task)
	if flowErr == nil {
		if err := e.gate.MarkRunToday(task.Name); err != nil {
			logger.Warn("mark run today", "err", err)
		}
		logger.Info("task finished", "outcome", string(outcome))
	} else {
		logger.Error("task failed", "err", flowErr)
	}

	e.notify(ctx, logger, task, outcome, flowErr)

	endedAt := e.now()
	run.EndedAt = &endedAt
	run.Status = RunStatusSucceeded
	if flowErr != nil {
		run.Status = RunStatusFailed
		msg := flowErr.Error()
		run.Error = &msg
	}
	// Record even when ctx was canceled by shutdown.
	recordCtx := context.WithoutCancel(ctx)
	if err := e.store.MarkRunCompleted(recordCtx, run.ID, run.Status, endedAt, run.Error); err != nil {
		logger.Warn("record run completion", "err", err)
	}
	if err := e.store.PruneRuns(recordCtx, task.Name); err != nil {
		logger.Warn("prune runs", "err", err)
	}
	return run, flowErr
}

// Skip records a run that did not execute.
func (e *Executor) Skip(ctx context.Context, task Task, trigger Trigger, scheduledAt time.Time, reason string) *Run {
	endedAt := e.now()
	run := &Run{
		ID:          NewID(),
		Task:        task.Name,
		Trigger:     trigger,
		Status:      RunStatusSkipped,
		ScheduledAt: scheduledAt,
		EndedAt:     &endedAt,
		Error:       &reason,
	}
	if err := e.store.InsertRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("record skipped run", "task", task.Name, "err", err)
	}
	e.logger.Info("run skipped", "task", task.Name, "trigger", string(trigger), "reason", reason)
	return run
}

func (e *Executor) runFlow(ctx context.Context, task Task) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("flow panicked: %v", r)
		}
	}()
	return e.flow.Run(ctx, task, e.creds)
}

func (e *Executor) notify(ctx context.Context, logger *slog.Logger, task Task, outcome Outcome, flowErr error) {
	title, body := notify.Compose(notify.Outcome{
		Subject:     task.Title,
		Username:    e.creds.Username,
		At:          e.now().In(e.location),
		Succeeded:   flowErr == nil,
		AlreadyDone: outcome == OutcomeAlreadyDone,
		Err:         flowErr,
	})
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := e.notifier.Send(sendCtx, title, body); err != nil {
		logger.Warn("send notification", "err", err)
		return
	}
	logger.Debug("notification sent", "title", title)
}
