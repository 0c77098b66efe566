package core

import (
	"fmt"
	"time"
)

// TaskKind distinguishes the two browser flows.
type TaskKind string

const (
	TaskKindCheckin TaskKind = "checkin"
	TaskKindReport  TaskKind = "report"
)

// Task names double as lock file names and daily marker keys.
const (
	TaskMorningCheckin = "checkin_morning"
	TaskEveningCheckin = "checkin_evening"
	TaskDailyReport    = "daily_report"
)

// Check-in variants.
const (
	VariantMorning = "morning"
	VariantEvening = "evening"
)

// Task is one scheduled job.
type Task struct {
	Name    string
	Title   string
	Kind    TaskKind
	Variant string
	Hour    int
	Minute  int
	Grace   time.Duration
}

// Cron returns the 5-field cron expression for the task's trigger time.
func (t Task) Cron() string {
	return TriggerExpr(t.Hour, t.Minute)
}

// At returns the trigger time as HH:MM.
func (t Task) At() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Trigger describes what caused a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerCatchup  Trigger = "catchup"
	TriggerStartup  Trigger = "startup"
	TriggerManual   Trigger = "manual"
)

// RunStatus describes the state of an individual execution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

// Skip reasons recorded on skipped runs.
const (
	SkipAlreadyCompleted = "already_completed"
	SkipLocked           = "locked"
	SkipMissedGrace      = "missed_grace"
)

// Run captures a single execution attempt of a task.
type Run struct {
	ID          string
	Task        string
	Trigger     Trigger
	Status      RunStatus
	ScheduledAt time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	Error       *string
	CreatedAt   time.Time
}

// Outcome is what a successful flow reports.
type Outcome string

const (
	OutcomeSubmitted   Outcome = "submitted"
	OutcomeAlreadyDone Outcome = "already_done"
)
