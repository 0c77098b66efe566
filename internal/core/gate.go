package core

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const dailyRecordFile = "daily_record.txt"

// Gate allows at most one concurrent run per task name (advisory lock file)
// and at most one successful run per task name per calendar day (marker
// file). Both live in a single directory on the local host.
type Gate struct {
	dir    string
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*flock.Flock
}

// GateOption customises a Gate.
type GateOption func(*Gate)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// NewGate creates the gate directory if needed.
func NewGate(dir string, loc *time.Location, logger *slog.Logger, opts ...GateOption) (*Gate, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock dir: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	g := &Gate{
		dir:    dir,
		loc:    loc,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*flock.Flock),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Today is the current date in the gate's timezone, as YYYY-MM-DD.
func (g *Gate) Today() string {
	return g.now().In(g.loc).Format("2006-01-02")
}

// LockPath returns the lock file for a task.
func (g *Gate) LockPath(name string) string {
	return filepath.Join(g.dir, name+".lock")
}

// RecordPath returns the daily marker file.
func (g *Gate) RecordPath() string {
	return filepath.Join(g.dir, dailyRecordFile)
}

// HasRunToday reports whether today's marker exists for name. Read errors
// count as "not run".
func (g *Gate) HasRunToday(name string) bool {
	done, err := g.hasRecord(name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			g.logger.Warn("read daily record", "err", err)
		}
		return false
	}
	if done {
		g.logger.Info("task already completed today, skipping", "task", name)
	}
	return done
}

// MarkRunToday rewrites the marker file keeping only today's records plus
// the one for name.
func (g *Gate) MarkRunToday(name string) error {
	today := g.Today()
	key := recordKey(today, name)

	var lines []string
	if data, err := os.ReadFile(g.RecordPath()); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, today+":") {
				lines = append(lines, line)
			}
		}
	}
	found := false
	for _, line := range lines {
		if line == key {
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, key)
	}

	if err := os.WriteFile(g.RecordPath(), []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write daily record: %w", err)
	}
	g.logger.Info("task marked complete for today", "task", name, "date", today)
	return nil
}

// AcquireLock takes the task's lock without blocking. It returns false when
// another run, in this process or another, holds it.
func (g *Gate) AcquireLock(name string) bool {
	path := g.LockPath(name)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		g.logger.Warn("acquire lock", "task", name, "err", err)
		return false
	}
	if !ok {
		g.logger.Warn("task is already running, skipping this run", "task", name)
		return false
	}
	// A releasing run may have removed the file between our open and lock.
	if !lockedFileIsCurrent(lock, path) {
		_ = lock.Unlock()
		g.logger.Warn("lock file was replaced while locking, skipping this run", "task", name)
		return false
	}
	// The PID is informational; the advisory lock is what excludes.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		g.logger.Warn("write lock pid", "task", name, "err", err)
	}

	g.mu.Lock()
	g.locks[name] = lock
	g.mu.Unlock()

	g.logger.Info("lock acquired", "task", name)
	return true
}

// ReleaseLock removes the lock file, then drops any handle this process
// holds. The file goes first so that a run locking the old inode after the
// unlock fails lockedFileIsCurrent. Missing files are ignored, so it is safe
// to call repeatedly.
func (g *Gate) ReleaseLock(name string) {
	if err := os.Remove(g.LockPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		g.logger.Warn("remove lock file", "task", name, "err", err)
	}

	g.mu.Lock()
	lock := g.locks[name]
	delete(g.locks, name)
	g.mu.Unlock()

	if lock != nil {
		if err := lock.Unlock(); err != nil {
			g.logger.Warn("unlock", "task", name, "err", err)
		}
	}
	g.logger.Info("lock released", "task", name)
}

// lockedFileIsCurrent reports whether the file held by lock is still the one
// at path.
func lockedFileIsCurrent(lock *flock.Flock, path string) bool {
	held, err := lock.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

// GateStatus is a read-only snapshot of one task's gate state.
type GateStatus struct {
	Task     string
	RanToday bool
	LockFile bool
	Held     bool
	PID      int
}

// Status inspects the marker and lock for name without changing them.
// A lock file that exists but is not held is left over from a crashed run.
func (g *Gate) Status(name string) GateStatus {
	ranToday, _ := g.hasRecord(name)
	st := GateStatus{Task: name, RanToday: ranToday}

	path := g.LockPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	st.LockFile = true
	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
		st.PID = pid
	}

	g.mu.Lock()
	_, mine := g.locks[name]
	g.mu.Unlock()
	if mine {
		st.Held = true
		return st
	}

	probe := flock.New(path)
	ok, err := probe.TryLock()
	if err != nil || !ok {
		st.Held = true
		return st
	}
	_ = probe.Unlock()
	return st
}

func (g *Gate) hasRecord(name string) (bool, error) {
	data, err := os.ReadFile(g.RecordPath())
	if err != nil {
		return false, err
	}
	key := recordKey(g.Today(), name)
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == key {
			return true, nil
		}
	}
	return false, nil
}

func recordKey(date, name string) string {
	return date + ":" + name
}
