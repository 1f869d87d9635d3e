// Package tmux manages the tmux sessions that host agent work.
//
// Each orchestration phase runs its agent inside a dedicated detached tmux
// session, named deterministically from the feature and phase number. The
// package wraps the tmux CLI behind a Runner interface so that every
// operation can be exercised in tests without a live tmux server.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
)

// SessionPrefix is the prefix for all overseer-managed tmux sessions.
const SessionPrefix = "overseer"

// DefaultCaptureLines is how many trailing pane lines Capture returns when
// no explicit limit is given.
const DefaultCaptureLines = 50

// Runner abstracts command execution for testability.
type Runner interface {
	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner implements Runner using os/exec.
type ExecRunner struct{}

// Run executes a command, capturing stdout and stderr separately.
func (e *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return strings.TrimSpace(outBuf.String()), strings.TrimSpace(errBuf.String()), err
}

// SessionName returns the deterministic session name for a feature and phase.
// The result has three segments: the overseer prefix, the sanitized feature
// name, and the phase number. Equal inputs always produce equal names, and
// distinct (feature, phase) pairs produce distinct names as long as their
// sanitized features differ.
func SessionName(feature string, phase int) string {
	return fmt.Sprintf("%s-%s-p%d", SessionPrefix, SanitizeFeature(feature), phase)
}

// SanitizeFeature normalizes a feature name for use inside a session name.
// The name is lowercased, every run of characters outside [a-z0-9] becomes a
// single hyphen, and leading/trailing hyphens are trimmed. An empty result
// collapses to "feature".
func SanitizeFeature(feature string) string {
	var sb strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(feature) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && sb.Len() > 0 {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	name := strings.TrimSuffix(sb.String(), "-")
	if name == "" {
		return "feature"
	}
	return name
}

// ParseSessionName splits an overseer session name back into its feature and
// phase. Returns ok=false for names that were not produced by SessionName.
func ParseSessionName(session string) (feature string, phase int, ok bool) {
	rest, found := strings.CutPrefix(session, SessionPrefix+"-")
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndex(rest, "-p")
	if idx <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(rest[idx+2:])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return rest[:idx], n, true
}

// Client performs tmux operations against named sessions.
type Client struct {
	runner Runner
}

// NewClient creates a Client backed by the real tmux binary.
func NewClient() *Client {
	return &Client{runner: &ExecRunner{}}
}

// NewClientWithRunner creates a Client with a custom Runner, for testing.
func NewClientWithRunner(r Runner) *Client {
	return &Client{runner: r}
}

// Exists checks whether the named session is running.
func (c *Client) Exists(ctx context.Context, session string) bool {
	_, _, err := c.runner.Run(ctx, "tmux", "has-session", "-t", session)
	return err == nil
}

// Create starts a detached session running command in workdir. Creating a
// session that already exists is an error.
func (c *Client) Create(ctx context.Context, session, workdir, command string) error {
	if c.Exists(ctx, session) {
		return overseererrors.NewProcessControlError("create session", overseererrors.ErrAlreadyExists).
			WithSession(session)
	}
	args := []string{"new-session", "-d", "-s", session}
	if workdir != "" {
		args = append(args, "-c", workdir)
	}
	if command != "" {
		args = append(args, command)
	}
	if _, stderr, err := c.runner.Run(ctx, "tmux", args...); err != nil {
		return overseererrors.NewProcessControlError("create session", err).
			WithSession(session).
			WithStderr(stderr)
	}
	return nil
}

// SendKeys types text into the session followed by Enter, as if the user had
// typed it at the agent's prompt.
func (c *Client) SendKeys(ctx context.Context, session, text string) error {
	if _, stderr, err := c.runner.Run(ctx, "tmux", "send-keys", "-t", session, text, "Enter"); err != nil {
		return overseererrors.NewProcessControlError("send keys", err).
			WithSession(session).
			WithStderr(stderr)
	}
	return nil
}

// SendRaw sends key names (e.g. "C-c", "Escape") without a trailing Enter.
func (c *Client) SendRaw(ctx context.Context, session string, keys ...string) error {
	args := append([]string{"send-keys", "-t", session}, keys...)
	if _, stderr, err := c.runner.Run(ctx, "tmux", args...); err != nil {
		return overseererrors.NewProcessControlError("send raw keys", err).
			WithSession(session).
			WithStderr(stderr)
	}
	return nil
}

// Capture returns the visible pane content of the session, limited to the
// trailing maxLines lines. maxLines <= 0 uses DefaultCaptureLines.
func (c *Client) Capture(ctx context.Context, session string, maxLines int) (string, error) {
	if maxLines <= 0 {
		maxLines = DefaultCaptureLines
	}
	out, stderr, err := c.runner.Run(ctx, "tmux", "capture-pane", "-p", "-t", session,
		"-S", fmt.Sprintf("-%d", maxLines))
	if err != nil {
		return "", overseererrors.NewProcessControlError("capture pane", err).
			WithSession(session).
			WithStderr(stderr)
	}
	return out, nil
}

// Kill destroys the named session. Killing a session that does not exist is
// not an error.
func (c *Client) Kill(ctx context.Context, session string) error {
	if !c.Exists(ctx, session) {
		return nil
	}
	if _, stderr, err := c.runner.Run(ctx, "tmux", "kill-session", "-t", session); err != nil {
		return overseererrors.NewProcessControlError("kill session", err).
			WithSession(session).
			WithStderr(stderr)
	}
	return nil
}

// ListSessions returns the names of all overseer-managed sessions.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	out, stderr, err := c.runner.Run(ctx, "tmux", "list-sessions", "-F", "#{session_name}")
	if err != nil {
		// tmux exits non-zero when no server is running; treat as empty.
		if strings.Contains(stderr, "no server running") || strings.Contains(stderr, "error connecting") {
			return nil, nil
		}
		return nil, overseererrors.NewProcessControlError("list sessions", err).WithStderr(stderr)
	}
	var sessions []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, SessionPrefix+"-") {
			sessions = append(sessions, line)
		}
	}
	return sessions, nil
}
