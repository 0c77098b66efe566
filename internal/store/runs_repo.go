package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"daka/internal/core"
)

var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, task, triggered_by, status, scheduled_at, started_at, ended_at, error, created_at`

func (s *Store) InsertRun(ctx context.Context, run *core.Run) error {
	now := time.Now().UTC()
	run.CreatedAt = now
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Task, string(run.Trigger), string(run.Status), run.ScheduledAt.UTC().Format(time.RFC3339Nano),
		nullableTime(run.StartedAt), nullableTime(run.EndedAt), nullableString(run.Error),
		run.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) MarkRunCompleted(ctx context.Context, id string, status core.RunStatus, endedAt time.Time, errMsg *string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, ended_at = ?, error = ?
		WHERE id = ?
	`, string(status), endedAt.UTC().Format(time.RFC3339Nano), nullableString(errMsg), id)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*core.Run, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns the newest runs first. An empty task lists every task.
func (s *Store) ListRuns(ctx context.Context, task string, limit int) ([]*core.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if task != "" {
		query += ` WHERE task = ?`
		args = append(args, task)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// PruneRuns deletes a task's runs beyond the retention limit.
func (s *Store) PruneRuns(ctx context.Context, task string) error {
	if s.Keep <= 0 {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `
		DELETE FROM runs
		WHERE task = ? AND id NOT IN (
			SELECT id FROM runs
			WHERE task = ?
			ORDER BY created_at DESC
			LIMIT ?
		)
	`, task, task, s.Keep)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*core.Run, error) {
	var (
		id          string
		task        string
		trigger     string
		status      string
		scheduledAt string
		startedAt   sql.NullString
		endedAt     sql.NullString
		errMsg      sql.NullString
		createdAt   string
	)
	if err := scanner.Scan(&id, &task, &trigger, &status, &scheduledAt, &startedAt, &endedAt, &errMsg, &createdAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run := &core.Run{
		ID:          id,
		Task:        task,
		Trigger:     core.Trigger(trigger),
		Status:      core.RunStatus(status),
		ScheduledAt: mustParseTime(scheduledAt),
		CreatedAt:   mustParseTime(createdAt),
	}
	if startedAt.Valid {
		t := mustParseTime(startedAt.String)
		run.StartedAt = &t
	}
	if endedAt.Valid {
		t := mustParseTime(endedAt.String)
		run.EndedAt = &t
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	return run, nil
}

func mustParseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(fmt.Sprintf("invalid stored time %q: %v", value, err))
	}
	return t
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
