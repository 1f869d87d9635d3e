package worktree

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
)

// fakeExecutor returns canned output keyed by the joined git arguments.
type fakeExecutor struct {
	calls     []string
	responses map[string]fakeResult
}

type fakeResult struct {
	output string
	err    error
}

func (f *fakeExecutor) Run(_ string, name string, args ...string) ([]byte, error) {
	key := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if resp, ok := f.responses[key]; ok {
		return []byte(resp.output), resp.err
	}
	return nil, nil
}

func logLine(sha, author string, ts int64, subject string) string {
	return fmt.Sprintf("%s\x1f%s\x1f%d\x1f%s", sha, author, ts, subject)
}

func TestHeadSHA(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]fakeResult{
		"git rev-parse HEAD": {output: "abc123\n"},
	}}
	g := NewGitWithExecutor("/work/auth", exec)

	sha, err := g.HeadSHA()
	if err != nil {
		t.Fatalf("HeadSHA() error = %v", err)
	}
	if sha != "abc123" {
		t.Errorf("HeadSHA() = %q, want %q", sha, "abc123")
	}
}

func TestHeadSHAEmptyRepo(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]fakeResult{
		"git rev-parse HEAD": {
			output: "fatal: ambiguous argument 'HEAD': unknown revision or path not in the working tree",
			err:    errors.New("exit 128"),
		},
	}}
	g := NewGitWithExecutor("/work/auth", exec)

	sha, err := g.HeadSHA()
	if err != nil {
		t.Fatalf("HeadSHA() on empty repo error = %v, want nil", err)
	}
	if sha != "" {
		t.Errorf("HeadSHA() = %q, want empty", sha)
	}
}

func TestCommitsSinceOldestFirst(t *testing.T) {
	output := strings.Join([]string{
		logLine("aaa", "dev one", 1700000000, "add login form"),
		logLine("bbb", "dev two", 1700000100, "wire session store"),
		logLine("ccc", "dev one", 1700000200, "fix redirect"),
	}, "\n")
	exec := &fakeExecutor{responses: map[string]fakeResult{
		"git log --reverse --format=%H\x1f%an\x1f%at\x1f%s old..HEAD": {output: output},
	}}
	g := NewGitWithExecutor("/work/auth", exec)

	commits, err := g.CommitsSince("old")
	if err != nil {
		t.Fatalf("CommitsSince() error = %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("len(commits) = %d, want 3", len(commits))
	}
	if commits[0].SHA != "aaa" || commits[2].SHA != "ccc" {
		t.Errorf("commits out of order: %v", commits)
	}
	if !commits[0].Timestamp.Before(commits[1].Timestamp) {
		t.Error("timestamps not ascending")
	}
	if got, want := commits[1].Subject, "wire session store"; got != want {
		t.Errorf("Subject = %q, want %q", got, want)
	}
	if got, want := commits[0].Timestamp, time.Unix(1700000000, 0).UTC(); !got.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got, want)
	}
}

func TestCommitsSinceEmpty(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]fakeResult{
		"git log --reverse --format=%H\x1f%an\x1f%at\x1f%s abc..HEAD": {output: ""},
	}}
	g := NewGitWithExecutor("/work/auth", exec)

	commits, err := g.CommitsSince("abc")
	if err != nil {
		t.Fatalf("CommitsSince() error = %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("CommitsSince() = %v, want empty", commits)
	}
}

func TestCommitsSinceSkipsMalformedLines(t *testing.T) {
	output := strings.Join([]string{
		logLine("aaa", "dev", 1700000000, "good commit"),
		"garbage line without separators",
		logLine("bbb", "dev", 1700000100, "another good one"),
	}, "\n")
	exec := &fakeExecutor{responses: map[string]fakeResult{
		"git log --reverse --format=%H\x1f%an\x1f%at\x1f%s": {output: output},
	}}
	g := NewGitWithExecutor("/work/auth", exec)

	commits, err := g.CommitsSince("")
	if err != nil {
		t.Fatalf("CommitsSince() error = %v", err)
	}
	if len(commits) != 2 {
		t.Errorf("len(commits) = %d, want 2", len(commits))
	}
}

func TestGitErrorCarriesOutput(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]fakeResult{
		"git rev-parse --abbrev-ref HEAD": {
			output: "fatal: not a git repository",
			err:    errors.New("exit 128"),
		},
	}}
	g := NewGitWithExecutor("/tmp/nowhere", exec)

	_, err := g.CurrentBranch()
	if err == nil {
		t.Fatal("CurrentBranch() error = nil, want failure")
	}

	var gitErr *overseererrors.GitError
	if !errors.As(err, &gitErr) {
		t.Fatalf("error type = %T, want GitError", err)
	}
	if !strings.Contains(gitErr.Error(), "not a git repository") {
		t.Errorf("error %q missing git output", gitErr.Error())
	}
	if gitErr.Repository != "/tmp/nowhere" {
		t.Errorf("Repository = %q, want /tmp/nowhere", gitErr.Repository)
	}
}

func TestManagerList(t *testing.T) {
	porcelain := strings.Join([]string{
		"worktree /repo",
		"HEAD aaa",
		"branch refs/heads/main",
		"",
		"worktree /repo/.overseer/worktrees/auth",
		"HEAD bbb",
		"branch refs/heads/overseer/auth",
	}, "\n")
	exec := &fakeExecutor{responses: map[string]fakeResult{
		"git worktree list --porcelain": {output: porcelain},
	}}
	m := NewManagerWithExecutor("/repo", exec)

	paths, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"/repo", "/repo/.overseer/worktrees/auth"}
	if len(paths) != len(want) {
		t.Fatalf("List() = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestManagerAdd(t *testing.T) {
	exec := &fakeExecutor{responses: map[string]fakeResult{}}
	m := NewManagerWithExecutor("/repo", exec)

	if err := m.Add("/repo/.overseer/worktrees/auth", "overseer/auth"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("calls = %v, want exactly one", exec.calls)
	}
	if !strings.Contains(exec.calls[0], "worktree add -b overseer/auth") {
		t.Errorf("call = %q, want worktree add", exec.calls[0])
	}
}
