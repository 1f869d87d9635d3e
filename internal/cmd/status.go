package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/overclockedllc/overseer/internal/state"
	"github.com/overclockedllc/overseer/internal/watch"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <feature>",
	Short: "Wait for the current phase to reach a terminal status",
	Long: `Status blocks until the current phase's status artifact reports a
terminal state, then prints the result as JSON and exits with a code that
encodes the outcome:

  0  complete
  1  blocked
  2  timeout
  3  session died`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var (
	statusTimeoutMin int
	statusComments   bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusTimeoutMin, "timeout", -1, "Watch budget in minutes, 0 = no timeout (default: from config)")
	statusCmd.Flags().BoolVar(&statusComments, "comments", false, "Print the orchestration's comment trail and exit")
}

func runStatus(cmd *cobra.Command, args []string) error {
	feature := args[0]

	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}

	if statusComments {
		defer closeDeps()
		return printComments(cmd, deps, feature)
	}

	rec, err := deps.registry.Get(feature)
	if err != nil {
		closeDeps()
		return err
	}
	orch, err := deps.store.FetchOrchestrationByFeature(cmd.Context(), feature)
	if err != nil {
		closeDeps()
		return err
	}

	timeout := deps.cfg.Watch.Timeout()
	if statusTimeoutMin >= 0 {
		timeout = time.Duration(statusTimeoutMin) * time.Minute
	}

	// One-shot watches poll faster than the streaming interval since nothing
	// is emitted between checks.
	watcher := watch.NewWatcher(deps.tmux, time.Second)
	result, err := watcher.Watch(cmd.Context(),
		watch.StatusFilePath(rec.Worktree, orch.CurrentPhase),
		timeout,
		sessionHintFor(orch))
	if err != nil {
		closeDeps()
		return err
	}

	out, err := json.Marshal(result)
	if err != nil {
		closeDeps()
		return err
	}
	fmt.Println(string(out))

	closeDeps()
	if code := result.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}

// sessionHintFor returns the current phase's session name, or "" when the
// phase is not running. Only running phases have live sessions; probing a
// session that was never created would read as session death on the first
// poll.
func sessionHintFor(orch *state.Orchestration) string {
	phase := orch.Phase(orch.CurrentPhase)
	if phase == nil || phase.Status != state.PhaseRunning {
		return ""
	}
	return orch.SessionName(orch.CurrentPhase)
}

func printComments(cmd *cobra.Command, deps *appDeps, feature string) error {
	if design, err := deps.store.GetDesign(cmd.Context(), feature); err == nil {
		fmt.Printf("Design: %s\n", design)
	}
	if ticket, err := deps.store.GetTicket(cmd.Context(), feature); err == nil {
		fmt.Printf("Ticket: %s\n", ticket)
	}

	comments, err := deps.store.ListComments(cmd.Context(), feature)
	if err != nil {
		return err
	}
	for _, c := range comments {
		fmt.Printf("%s  %s  %s\n", c.CreatedAt.Format(time.RFC3339), c.Author, c.Body)
	}
	return nil
}
