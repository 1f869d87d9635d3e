package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
)

func TestIsReady(t *testing.T) {
	tests := []struct {
		name     string
		captured string
		want     bool
	}{
		{
			name:     "bare prompt glyph",
			captured: "some startup output\n> ",
			want:     true,
		},
		{
			name:     "prompt with leading whitespace",
			captured: "  \t> type your message",
			want:     true,
		},
		{
			name:     "prompt inside box border",
			captured: "╭──────╮\n│ >    │\n╰──────╯",
			want:     true,
		},
		{
			name:     "bypass permissions marker",
			captured: "⏵⏵ bypass permissions on",
			want:     true,
		},
		{
			name:     "welcome banner",
			captured: "Welcome to Claude Code!\nloading...",
			want:     true,
		},
		{
			name:     "prompt wrapped in ansi color",
			captured: "\x1b[32m>\x1b[0m ",
			want:     true,
		},
		{
			name:     "still booting",
			captured: "Initializing...\nLoading configuration",
			want:     false,
		},
		{
			name:     "glyph mid-line is not a prompt",
			captured: "compare a > b in the docs",
			want:     false,
		},
		{
			name:     "empty capture",
			captured: "",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReady(tt.captured); got != tt.want {
				t.Errorf("IsReady(%q) = %v, want %v", tt.captured, got, tt.want)
			}
		})
	}
}

func TestStripAnsi(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no ansi", "plain text", "plain text"},
		{"color codes", "\x1b[31mred\x1b[0m", "red"},
		{"osc sequence", "\x1b]0;title\x07body", "body"},
		{"mixed", "a\x1b[1;32mb\x1b[0mc", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripAnsi(tt.input); got != tt.want {
				t.Errorf("StripAnsi(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// scriptedCapturer returns one canned response per call, repeating the last.
type scriptedCapturer struct {
	outputs []string
	errs    []error
	calls   int
}

func (s *scriptedCapturer) Capture(context.Context, string, int) (string, error) {
	i := s.calls
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.outputs[i], err
}

// fakeClock advances a fixed amount every time the waiter sleeps.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) sleep(d time.Duration) { c.current = c.current.Add(d) }

func TestWaitForReadyEventuallyReady(t *testing.T) {
	capturer := &scriptedCapturer{
		outputs: []string{"booting", "still booting", "done\n> "},
	}
	clock := &fakeClock{current: time.Unix(1000, 0)}
	w := NewWaiter(capturer, 500*time.Millisecond, 50).
		WithSleeper(clock.sleep).
		WithClock(clock.now)

	err := w.WaitForReady(context.Background(), "overseer-auth-p1", 30*time.Second)
	if err != nil {
		t.Fatalf("WaitForReady() error = %v", err)
	}
	if capturer.calls != 3 {
		t.Errorf("capture calls = %d, want 3", capturer.calls)
	}
}

func TestWaitForReadyCaptureFailureMeansNotReady(t *testing.T) {
	capturer := &scriptedCapturer{
		outputs: []string{"", "> "},
		errs:    []error{errors.New("pane not found"), nil},
	}
	clock := &fakeClock{current: time.Unix(1000, 0)}
	w := NewWaiter(capturer, 500*time.Millisecond, 50).
		WithSleeper(clock.sleep).
		WithClock(clock.now)

	err := w.WaitForReady(context.Background(), "overseer-auth-p1", 30*time.Second)
	if err != nil {
		t.Fatalf("WaitForReady() error = %v, want nil after transient capture failure", err)
	}
}

func TestWaitForReadyTimeout(t *testing.T) {
	capturer := &scriptedCapturer{outputs: []string{"never ready"}}
	clock := &fakeClock{current: time.Unix(1000, 0)}
	w := NewWaiter(capturer, 500*time.Millisecond, 50).
		WithSleeper(clock.sleep).
		WithClock(clock.now)

	err := w.WaitForReady(context.Background(), "overseer-auth-p1", 2*time.Second)
	if !overseererrors.IsTimeout(err) {
		t.Errorf("WaitForReady() error = %v, want timeout", err)
	}
}

func TestWaitForReadyContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	capturer := &scriptedCapturer{outputs: []string{"booting"}}
	w := NewWaiter(capturer, 500*time.Millisecond, 50).
		WithSleeper(func(time.Duration) {})

	err := w.WaitForReady(ctx, "overseer-auth-p1", 30*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForReady() error = %v, want context.Canceled", err)
	}
}
