package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/overclockedllc/overseer/internal/watch"
	"github.com/overclockedllc/overseer/internal/worktree"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <feature>",
	Short: "Stream phase progress until a terminal status",
	Long: `Watch streams one JSON progress snapshot per interval while the current
phase runs: elapsed time, task counts, in-progress task IDs, and the
worktree's HEAD commit. When the phase reaches a terminal state the final
result is printed and the exit code encodes the outcome (see 'status').`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchTimeoutMin int

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchTimeoutMin, "timeout", -1, "Watch budget in minutes, 0 = no timeout (default: from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	feature := args[0]

	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
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
	if watchTimeoutMin >= 0 {
		timeout = time.Duration(watchTimeoutMin) * time.Minute
	}

	var team string
	if phase := orch.Phase(orch.CurrentPhase); phase != nil {
		team = phase.Team
	}

	enc := json.NewEncoder(os.Stdout)
	watcher := watch.NewWatcher(deps.tmux, deps.cfg.Watch.Interval())
	result, err := watcher.WatchStreaming(cmd.Context(),
		watch.StatusFilePath(rec.Worktree, orch.CurrentPhase),
		worktree.NewGit(rec.Worktree),
		team,
		timeout,
		sessionHintFor(orch),
		func(update watch.StatusUpdate) {
			enc.Encode(update)
		})
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
