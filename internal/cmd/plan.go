package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/overclockedllc/overseer/internal/orchestrator"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <feature>",
	Short: "Plan a new orchestration for a feature",
	Long: `Plan creates a new orchestration in the planning state: a git worktree
and branch for the feature, the registry record, and the store row. Phase
sessions are not started until 'overseer start'.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var (
	planPhases   int
	planDesign   string
	planTicket   string
	planWorktree string
	planBranch   string
)

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().IntVar(&planPhases, "phases", 1, "Number of phases")
	planCmd.Flags().StringVar(&planDesign, "design", "", "Design document reference")
	planCmd.Flags().StringVar(&planTicket, "ticket", "", "Ticket reference")
	planCmd.Flags().StringVar(&planWorktree, "worktree", "", "Worktree path (default: <state-dir>/worktrees/<feature>)")
	planCmd.Flags().StringVar(&planBranch, "branch", "", "Branch name (default: overseer/<feature>)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	feature := args[0]

	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}
	defer closeDeps()

	worktreePath := planWorktree
	if worktreePath == "" {
		stateDir := deps.cfg.Paths.ResolveStateDir(deps.repoRoot)
		worktreePath = filepath.Join(stateDir, "worktrees", feature)
	}
	branch := planBranch
	if branch == "" {
		branch = "overseer/" + feature
	}

	orch, err := deps.coordinator().Plan(cmd.Context(), orchestrator.PlanRequest{
		Feature:     feature,
		Worktree:    worktreePath,
		Branch:      branch,
		TotalPhases: planPhases,
		DesignDoc:   planDesign,
		Ticket:      planTicket,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Planned %s: %d phase(s)\n", orch.Feature, orch.TotalPhases)
	fmt.Printf("  Worktree: %s\n", orch.Worktree)
	fmt.Printf("  Branch:   %s\n", orch.Branch)
	return nil
}
