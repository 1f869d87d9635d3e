package cmd

import (
	"slices"
	"testing"

	"github.com/overclockedllc/overseer/internal/state"
)

func TestRootCommand(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd is nil")
	}

	if rootCmd.Use != "overseer" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "overseer")
	}

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expectedCmds := []string{"plan", "start", "status", "watch", "list", "complete", "block", "recover", "cleanup", "daemon"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}

	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestSessionHintOnlyForRunningPhase(t *testing.T) {
	orch, err := state.NewOrchestration("auth", "/tmp/wt", "feature/auth", 2)
	if err != nil {
		t.Fatalf("NewOrchestration() error = %v", err)
	}

	if hint := sessionHintFor(orch); hint != "" {
		t.Errorf("hint for pending phase = %q, want empty", hint)
	}

	if err := orch.Phases[0].Transition(state.PhaseRunning); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	if hint := sessionHintFor(orch); hint != "overseer-auth-p1" {
		t.Errorf("hint for running phase = %q, want %q", hint, "overseer-auth-p1")
	}
}

func TestLiveSessionsByFeature(t *testing.T) {
	sessions := []string{
		"overseer-auth-p2",
		"overseer-auth-p1",
		"overseer-billing-p1",
		"overseer-broken-pX", // malformed phase
		"scratch",            // not ours
	}

	live := liveSessionsByFeature(sessions)

	if got := live["auth"]; !slices.Equal(got, []int{1, 2}) {
		t.Errorf("auth phases = %v, want [1 2]", got)
	}
	if got := live["billing"]; !slices.Equal(got, []int{1}) {
		t.Errorf("billing phases = %v, want [1]", got)
	}
	if len(live) != 2 {
		t.Errorf("features = %d, want 2 (foreign sessions ignored)", len(live))
	}
}

func TestWorktreeBranchOutsideRepository(t *testing.T) {
	if got := worktreeBranch(t.TempDir()); got != "-" {
		t.Errorf("worktreeBranch = %q, want %q", got, "-")
	}
}

func TestCommandsDeclarePositionalArgs(t *testing.T) {
	for _, name := range []string{"plan", "start", "status", "watch", "recover", "cleanup", "complete"} {
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() != name {
				continue
			}
			if cmd.Args == nil {
				t.Errorf("%s should declare positional args", name)
			}
		}
	}
}
