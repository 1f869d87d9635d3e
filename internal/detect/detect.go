// Package detect decides whether an agent running inside a tmux session has
// finished starting up and is ready to accept a prompt.
//
// Readiness is inferred from captured pane text: a line whose first visible
// character is the input prompt glyph ">", or a startup banner marker. ANSI
// escape codes are stripped before matching since tmux capture output may
// carry color sequences.
package detect

import (
	"context"
	"regexp"
	"strings"
	"time"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
)

// DefaultPollInterval is how often WaitForReady re-captures the pane.
const DefaultPollInterval = 500 * time.Millisecond

// readyMarkers are substrings whose presence anywhere in the pane indicates
// the agent finished starting up even if the prompt glyph is obscured.
var readyMarkers = []string{
	"bypass permissions",
	"Welcome to Claude",
}

// ansiRegex matches CSI sequences and OSC sequences (terminated by BEL).
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// StripAnsi removes ANSI escape codes from text.
func StripAnsi(text string) string {
	return ansiRegex.ReplaceAllString(text, "")
}

// IsReady reports whether the captured pane text shows a ready agent.
func IsReady(captured string) bool {
	text := StripAnsi(captured)

	for _, marker := range readyMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		// The prompt may be drawn inside a box border.
		trimmed = strings.TrimLeft(trimmed, "│ ")
		if strings.HasPrefix(trimmed, ">") {
			return true
		}
	}
	return false
}

// Capturer captures pane content from a session. Capture failures are
// interpreted as "not ready yet", not as hard errors: a session may briefly
// be uncapturable while tmux is still spinning it up.
type Capturer interface {
	Capture(ctx context.Context, session string, maxLines int) (string, error)
}

// Sleeper pauses between polls. Tests inject a fake to avoid real delays.
type Sleeper func(time.Duration)

// Waiter polls a session until its agent is ready.
type Waiter struct {
	capturer Capturer
	interval time.Duration
	lines    int
	sleep    Sleeper
	now      func() time.Time
}

// NewWaiter creates a Waiter polling via the given capturer every interval,
// reading up to captureLines of pane content per probe. interval <= 0 uses
// DefaultPollInterval.
func NewWaiter(capturer Capturer, interval time.Duration, captureLines int) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Waiter{
		capturer: capturer,
		interval: interval,
		lines:    captureLines,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// WithSleeper overrides the inter-poll sleep, for testing.
func (w *Waiter) WithSleeper(s Sleeper) *Waiter {
	w.sleep = s
	return w
}

// WithClock overrides the time source, for testing.
func (w *Waiter) WithClock(now func() time.Time) *Waiter {
	w.now = now
	return w
}

// WaitForReady polls the session until the agent is ready or the timeout
// elapses. Returns a TimeoutError when the budget is exhausted, or the
// context error if ctx is canceled first.
func (w *Waiter) WaitForReady(ctx context.Context, session string, timeout time.Duration) error {
	deadline := w.now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := w.capturer.Capture(ctx, session, w.lines)
		if err == nil && IsReady(out) {
			return nil
		}

		if !w.now().Before(deadline) {
			return overseererrors.NewTimeoutError("wait for agent ready in "+session, timeout)
		}
		w.sleep(w.interval)
	}
}
