// Package watch polls a phase's status artifact plus session liveness until
// the phase reaches a terminal state.
//
// The watcher never uses OS-level file notification: status artifacts are
// small, locally-written JSON files checked by periodic stat+read. Absent or
// unparsable artifacts mean "no status yet" and keep the poll going; only
// total-timeout and session death terminate a watch without a complete or
// blocked status.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Result statuses reported by a finished watch.
const (
	ResultComplete    = "complete"
	ResultBlocked     = "blocked"
	ResultTimeout     = "timeout"
	ResultSessionDied = "session_died"
)

// Exit codes for each terminal watch outcome.
const (
	ExitComplete    = 0
	ExitBlocked     = 1
	ExitTimeout     = 2
	ExitSessionDied = 3
)

// DefaultInterval is the streaming snapshot interval when none is configured.
const DefaultInterval = 2 * time.Second

// TaskEntry is one task as reported by the status artifact.
type TaskEntry struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Agent  string `json:"agent,omitempty"`
}

// StatusFile is the structured status artifact a phase's agents write to
// <worktree>/.overseer/phase-<n>/status.json.
type StatusFile struct {
	Status        string      `json:"status"`
	GitRange      string      `json:"git_range,omitempty"`
	BlockedReason string      `json:"blocked_reason,omitempty"`
	Tasks         []TaskEntry `json:"tasks,omitempty"`
}

// StatusFilePath returns the status artifact location for a phase.
func StatusFilePath(worktree string, phase int) string {
	return filepath.Join(worktree, ".overseer", fmt.Sprintf("phase-%d", phase), "status.json")
}

// ReadStatusFile reads and parses a status artifact. An absent or unparsable
// file returns (nil, nil): the watcher treats both as "no status yet".
func ReadStatusFile(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var sf StatusFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, nil
	}
	return &sf, nil
}

// WaitResult is the terminal outcome of a watch.
type WaitResult struct {
	Status        string `json:"status"`
	GitRange      string `json:"git_range,omitempty"`
	BlockedReason string `json:"blocked_reason,omitempty"`
}

// ExitCode maps the result to the process exit code contract.
func (r WaitResult) ExitCode() int {
	switch r.Status {
	case ResultComplete:
		return ExitComplete
	case ResultBlocked:
		return ExitBlocked
	case ResultSessionDied:
		return ExitSessionDied
	case ResultTimeout:
		return ExitTimeout
	default:
		return ExitBlocked
	}
}

// StatusUpdate is one streaming progress snapshot.
type StatusUpdate struct {
	ElapsedSeconds int      `json:"elapsed_seconds"`
	Status         string   `json:"status"`
	TasksCompleted int      `json:"tasks_completed"`
	TasksTotal     int      `json:"tasks_total"`
	InProgress     []string `json:"in_progress,omitempty"`
	LastCommit     string   `json:"last_commit,omitempty"`
	Team           string   `json:"team,omitempty"`
}

// SessionProber reports whether a tmux session is still alive.
type SessionProber interface {
	Exists(ctx context.Context, session string) bool
}

// HeadReader returns the most recent commit SHA in a worktree. Streaming
// snapshots include it so observers can follow the commit trail.
type HeadReader interface {
	HeadSHA() (string, error)
}

// Clock abstracts time for the polling loops so tests can simulate long
// watches without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// Watcher polls status artifacts.
type Watcher struct {
	clock    Clock
	prober   SessionProber
	interval time.Duration
}

// NewWatcher creates a Watcher. prober may be nil when no session hint will
// be given. interval <= 0 uses DefaultInterval.
func NewWatcher(prober SessionProber, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{clock: RealClock{}, prober: prober, interval: interval}
}

// WithClock overrides the time source, for testing.
func (w *Watcher) WithClock(c Clock) *Watcher {
	w.clock = c
	return w
}

// sessionDied reports whether the hinted session has disappeared. An empty
// hint or missing prober disables the check.
func (w *Watcher) sessionDied(ctx context.Context, sessionHint string) bool {
	if sessionHint == "" || w.prober == nil {
		return false
	}
	return !w.prober.Exists(ctx, sessionHint)
}

func terminalResult(sf *StatusFile) (WaitResult, bool) {
	if sf == nil {
		return WaitResult{}, false
	}
	switch sf.Status {
	case ResultComplete, ResultBlocked:
		return WaitResult{
			Status:        sf.Status,
			GitRange:      sf.GitRange,
			BlockedReason: sf.BlockedReason,
		}, true
	}
	return WaitResult{}, false
}

// Watch polls the status artifact at path until it reports a terminal state,
// the hinted session dies, or the timeout elapses. Timeout is a result, not
// an error: callers map it to exit code 2.
func (w *Watcher) Watch(ctx context.Context, path string, timeout time.Duration, sessionHint string) (WaitResult, error) {
	deadline := w.clock.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return WaitResult{Status: ResultTimeout}, err
		}

		sf, _ := ReadStatusFile(path)
		if result, done := terminalResult(sf); done {
			return result, nil
		}
		if w.sessionDied(ctx, sessionHint) {
			return WaitResult{Status: ResultSessionDied}, nil
		}
		if timeout > 0 && !w.clock.Now().Before(deadline) {
			return WaitResult{Status: ResultTimeout}, nil
		}
		w.clock.Sleep(w.interval)
	}
}

// snapshot builds a StatusUpdate from the current artifact, elapsed time,
// and worktree HEAD.
func snapshot(sf *StatusFile, elapsed time.Duration, head HeadReader, team string) StatusUpdate {
	update := StatusUpdate{
		ElapsedSeconds: int(elapsed.Seconds()),
		Status:         "waiting",
		Team:           team,
	}
	if sf != nil {
		update.Status = sf.Status
		update.TasksTotal = len(sf.Tasks)
		for _, task := range sf.Tasks {
			switch task.Status {
			case "completed":
				update.TasksCompleted++
			case "in_progress":
				update.InProgress = append(update.InProgress, task.ID)
			}
		}
	}
	if head != nil {
		if sha, err := head.HeadSHA(); err == nil {
			update.LastCommit = sha
		}
	}
	return update
}

// WatchStreaming behaves like Watch but emits one progress snapshot per
// interval tick until a terminal condition is reached. Snapshots are strictly
// time-ordered with non-decreasing elapsed time, and exactly one is emitted
// per tick.
func (w *Watcher) WatchStreaming(ctx context.Context, path string, head HeadReader, team string,
	timeout time.Duration, sessionHint string, emit func(StatusUpdate)) (WaitResult, error) {

	start := w.clock.Now()
	deadline := start.Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return WaitResult{Status: ResultTimeout}, err
		}

		sf, _ := ReadStatusFile(path)
		if result, done := terminalResult(sf); done {
			return result, nil
		}
		if w.sessionDied(ctx, sessionHint) {
			return WaitResult{Status: ResultSessionDied}, nil
		}
		if timeout > 0 && !w.clock.Now().Before(deadline) {
			return WaitResult{Status: ResultTimeout}, nil
		}

		w.clock.Sleep(w.interval)
		if emit != nil {
			emit(snapshot(sf, w.clock.Now().Sub(start), head, team))
		}
	}
}
