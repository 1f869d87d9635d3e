// Package worktree provides read-only git queries against orchestrated
// worktrees plus the worktree management operations overseer needs when
// setting a feature up.
//
// Git is invoked as an external process behind a CommandExecutor interface
// so the daemon's reconciliation logic can be tested without a real
// repository.
package worktree

import (
	"os/exec"
	"strconv"
	"strings"
	"time"

	overseererrors "github.com/overclockedllc/overseer/internal/errors"
)

// -----------------------------------------------------------------------------
// Command Executor
// -----------------------------------------------------------------------------

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command in dir and returns combined output.
	Run(dir string, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

// Run executes a command and returns combined output.
func (e *CLICommandExecutor) Run(dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// -----------------------------------------------------------------------------
// Git queries
// -----------------------------------------------------------------------------

// Commit is one commit read from the worktree's log.
type Commit struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
}

// Git runs read-only queries against a single worktree.
type Git struct {
	dir      string
	executor CommandExecutor
}

// NewGit creates a Git handle for the given worktree directory.
func NewGit(dir string) *Git {
	return &Git{dir: dir, executor: NewCLICommandExecutor()}
}

// NewGitWithExecutor creates a Git handle with a custom executor, for tests.
func NewGitWithExecutor(dir string, executor CommandExecutor) *Git {
	return &Git{dir: dir, executor: executor}
}

// Dir returns the worktree directory this handle queries.
func (g *Git) Dir() string {
	return g.dir
}

func (g *Git) run(args ...string) (string, error) {
	out, err := g.executor.Run(g.dir, "git", args...)
	if err != nil {
		return "", overseererrors.NewGitError("git "+strings.Join(args, " ")+" failed", err).
			WithRepository(g.dir).
			WithOutput(strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// HeadSHA returns the current HEAD commit SHA, or empty string with no error
// when the worktree has no commits yet.
func (g *Git) HeadSHA() (string, error) {
	out, err := g.run("rev-parse", "HEAD")
	if err != nil {
		var gitErr *overseererrors.GitError
		if overseererrors.As(err, &gitErr) && strings.Contains(gitErr.Output, "unknown revision") {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// logFormat is the per-commit record layout used by CommitsSince: SHA, author
// name, unix timestamp, and subject, separated by a character that cannot
// appear in the first three fields.
const logFormat = "%H\x1f%an\x1f%at\x1f%s"

// CommitsSince returns the commits after sinceSHA, oldest first, so callers
// attributing commits to phases by timestamp see them in causal order. An
// empty sinceSHA returns the full history.
func (g *Git) CommitsSince(sinceSHA string) ([]Commit, error) {
	args := []string{"log", "--reverse", "--format=" + logFormat}
	if sinceSHA != "" {
		args = append(args, sinceSHA+"..HEAD")
	}

	out, err := g.run(args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\x1f", 4)
		if len(fields) != 4 {
			continue
		}
		unix, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			continue
		}
		commits = append(commits, Commit{
			SHA:       fields[0],
			Author:    fields[1],
			Timestamp: time.Unix(unix, 0).UTC(),
			Subject:   fields[3],
		})
	}
	return commits, nil
}

// CurrentBranch returns the name of the checked-out branch.
func (g *Git) CurrentBranch() (string, error) {
	return g.run("rev-parse", "--abbrev-ref", "HEAD")
}

// IsRepo reports whether the directory is inside a git worktree.
func (g *Git) IsRepo() bool {
	_, err := g.run("rev-parse", "--is-inside-work-tree")
	return err == nil
}

// -----------------------------------------------------------------------------
// Worktree management
// -----------------------------------------------------------------------------

// Manager creates and removes worktrees of a primary repository.
type Manager struct {
	repoDir  string
	executor CommandExecutor
}

// NewManager creates a Manager for the given primary repository.
func NewManager(repoDir string) *Manager {
	return &Manager{repoDir: repoDir, executor: NewCLICommandExecutor()}
}

// NewManagerWithExecutor creates a Manager with a custom executor, for tests.
func NewManagerWithExecutor(repoDir string, executor CommandExecutor) *Manager {
	return &Manager{repoDir: repoDir, executor: executor}
}

func (m *Manager) run(args ...string) (string, error) {
	out, err := m.executor.Run(m.repoDir, "git", args...)
	if err != nil {
		return "", overseererrors.NewGitError("git "+strings.Join(args, " ")+" failed", err).
			WithRepository(m.repoDir).
			WithOutput(strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Add creates a worktree at path on a new branch.
func (m *Manager) Add(path, branch string) error {
	_, err := m.run("worktree", "add", "-b", branch, path)
	return err
}

// Remove removes the worktree at path. Uncommitted changes are discarded.
func (m *Manager) Remove(path string) error {
	_, err := m.run("worktree", "remove", "--force", path)
	return err
}

// List returns the paths of all worktrees of the repository.
func (m *Manager) List() ([]string, error) {
	out, err := m.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if rest, found := strings.CutPrefix(line, "worktree "); found {
			paths = append(paths, rest)
		}
	}
	return paths, nil
}
