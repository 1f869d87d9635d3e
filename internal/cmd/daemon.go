package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/overclockedllc/overseer/internal/daemon"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync loop",
	Long: `Daemon reconciles every registered worktree against the store on a
fixed interval: new commits are recorded oldest first and attributed to
phases, and changed plan documents are re-synced by content digest.

Only one daemon runs per repository; a PID file enforces this. The loop
runs until interrupted.`,
	RunE: runDaemon,
}

var daemonOnce bool

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().BoolVar(&daemonOnce, "once", false, "Run a single sync cycle and exit")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}
	defer closeDeps()

	syncer := daemon.NewSyncer(deps.registry, deps.store, deps.cfg.Paths.PlansDir, deps.logger)

	if daemonOnce {
		stats := syncer.RunCycle(cmd.Context())
		fmt.Printf("Synced %d worktree(s): %d commit(s), %d plan(s), %d failure(s)\n",
			stats.Worktrees, stats.CommitsSynced, stats.PlansSynced, stats.Failures)
		return nil
	}

	d := daemon.New(syncer,
		deps.cfg.Daemon.SyncInterval(),
		deps.cfg.ResolvePidFile(deps.repoRoot),
		deps.logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Daemon running (interval %s). Ctrl-C to stop.\n", deps.cfg.Daemon.SyncInterval())

	<-ctx.Done()
	d.Stop()
	return nil
}
