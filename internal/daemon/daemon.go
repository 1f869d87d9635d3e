package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/overclockedllc/overseer/internal/errors"
	"github.com/overclockedllc/overseer/internal/logging"
)

// DefaultSyncInterval is how often the daemon reconciles worktrees when no
// interval is configured.
const DefaultSyncInterval = 60 * time.Second

// Daemon drives the Syncer on a fixed interval until stopped. At most one
// daemon runs per PID file.
type Daemon struct {
	syncer   *Syncer
	interval time.Duration
	pidFile  string
	logger   *logging.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}
	triggerCh chan struct{}

	mu         sync.Mutex
	running    bool
	lastSyncAt time.Time
	lastStats  CycleStats
	lastError  error
}

// New creates a Daemon around the given syncer.
func New(syncer *Syncer, interval time.Duration, pidFile string, logger *logging.Logger) *Daemon {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Daemon{
		syncer:    syncer,
		interval:  interval,
		pidFile:   pidFile,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start begins the sync loop in a goroutine. It fails if a daemon already
// holds the PID file.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return errors.New("daemon already running")
	}

	if d.pidFile != "" {
		if pid, running := readPidFile(d.pidFile); running {
			return fmt.Errorf("daemon already running with PID %d", pid)
		}
		if err := writePidFile(d.pidFile); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
	}

	d.running = true
	go d.run(ctx, d.stopCh, d.stoppedCh)

	d.logger.Info("daemon started", "interval", d.interval.String())
	return nil
}

// Stop halts the sync loop and blocks until the current cycle finishes.
// Stopping an idle daemon is a no-op.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	// Claim the shutdown under the lock so concurrent Stops cannot both
	// close the same channel. Fresh channels arm the next Start. The wait
	// itself happens unlocked: the loop's cycle takes the same mutex.
	d.running = false
	stopCh, stoppedCh := d.stopCh, d.stoppedCh
	d.stopCh = make(chan struct{})
	d.stoppedCh = make(chan struct{})
	d.mu.Unlock()

	close(stopCh)
	<-stoppedCh

	if d.pidFile != "" {
		os.Remove(d.pidFile)
	}
	d.logger.Info("daemon stopped")
}

// TriggerSync requests an immediate cycle without waiting for the interval.
func (d *Daemon) TriggerSync() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

// RunOnce performs a single sync cycle in the calling goroutine.
func (d *Daemon) RunOnce(ctx context.Context) CycleStats {
	stats := d.syncer.RunCycle(ctx)

	d.mu.Lock()
	d.lastSyncAt = time.Now()
	d.lastStats = stats
	if stats.Failures > 0 {
		d.lastError = fmt.Errorf("%d worktree(s) failed to sync", stats.Failures)
	} else {
		d.lastError = nil
	}
	d.mu.Unlock()

	return stats
}

// IsRunning reports whether the loop is active.
func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// LastSync returns when the last cycle finished, its stats, and any error
// it recorded.
func (d *Daemon) LastSync() (time.Time, CycleStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSyncAt, d.lastStats, d.lastError
}

func (d *Daemon) run(ctx context.Context, stopCh, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	// Sync immediately on startup rather than waiting a full interval.
	d.cycle(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cycle(ctx)
		case <-d.triggerCh:
			d.cycle(ctx)
		}
	}
}

func (d *Daemon) cycle(ctx context.Context) {
	stats := d.RunOnce(ctx)
	d.logger.Debug("sync cycle complete",
		"worktrees", stats.Worktrees,
		"commits", stats.CommitsSynced,
		"plans", stats.PlansSynced,
		"failures", stats.Failures)
}

// ----- PID file handling -----

func writePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// readPidFile returns the recorded PID and whether that process is alive.
// A stale file pointing at a dead process is removed.
func readPidFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(path)
		return 0, false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(path)
		return 0, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(path)
		return 0, false
	}
	return pid, true
}
