package tmux

import (
	"context"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultGracefulStopTimeout is the default time to wait after sending Ctrl+C
// before force-killing the session during shutdown.
const DefaultGracefulStopTimeout = 5 * time.Second

// PanePID returns the PID of the process running in the session's pane.
// Returns 0 if the PID cannot be determined (e.g., session doesn't exist).
func (c *Client) PanePID(ctx context.Context, session string) int {
	out, _, err := c.runner.Run(ctx, "tmux", "display-message", "-t", session, "-p", "#{pane_pid}")
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return pid
}

// descendantPIDs returns all descendant PIDs of the given PID (recursive).
// Uses pgrep -P to find child processes.
func (c *Client) descendantPIDs(ctx context.Context, pid int) []int {
	if pid <= 0 {
		return nil
	}
	out, _, err := c.runner.Run(ctx, "pgrep", "-P", strconv.Itoa(pid))
	if err != nil {
		return nil
	}

	var descendants []int
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		childPID, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		descendants = append(descendants, childPID)
		descendants = append(descendants, c.descendantPIDs(ctx, childPID)...)
	}
	return descendants
}

// isProcessAlive checks if a process with the given PID exists.
// Uses kill(pid, 0) which checks for process existence without sending a signal.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// killProcessTree sends SIGKILL to a process and all its descendants.
// Descendants are killed bottom-up to prevent orphaning.
func (c *Client) killProcessTree(ctx context.Context, pid int) {
	if pid <= 0 {
		return
	}

	descendants := c.descendantPIDs(ctx, pid)
	for i := len(descendants) - 1; i >= 0; i-- {
		if isProcessAlive(descendants[i]) {
			_ = syscall.Kill(descendants[i], syscall.SIGKILL)
		}
	}
	if isProcessAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

// waitForProcessExit polls until the given PID exits or the timeout is reached.
// Returns true if the process exited within the timeout.
func waitForProcessExit(pid int, timeout time.Duration) bool {
	if pid <= 0 || !isProcessAlive(pid) {
		return true
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return !isProcessAlive(pid)
		case <-ticker.C:
			if !isProcessAlive(pid) {
				return true
			}
		}
	}
}

// GracefulShutdown tears down a session in stages: capture the process tree
// while the session is still alive, send Ctrl+C, wait up to grace for the
// pane process to exit, kill the session, then force-kill any survivors.
func (c *Client) GracefulShutdown(ctx context.Context, session string, grace time.Duration) error {
	if !c.Exists(ctx, session) {
		return nil
	}
	if grace <= 0 {
		grace = DefaultGracefulStopTimeout
	}

	panePID := c.PanePID(ctx, session)
	var pids []int
	if panePID > 0 {
		pids = append([]int{panePID}, c.descendantPIDs(ctx, panePID)...)
	}

	_ = c.SendRaw(ctx, session, "C-c")
	waitForProcessExit(panePID, grace)

	err := c.Kill(ctx, session)

	for _, pid := range pids {
		if isProcessAlive(pid) {
			c.killProcessTree(ctx, pid)
		}
	}
	return err
}
