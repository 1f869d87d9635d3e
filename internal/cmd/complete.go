package cmd

import (
	"fmt"

	"github.com/overclockedllc/overseer/internal/state"
	"github.com/spf13/cobra"
)

var completeCmd = &cobra.Command{
	Use:   "complete <feature>",
	Short: "Close out the current phase, or the whole orchestration",
	Long: `Complete marks the current phase done and advances to the next one.
The phase's status artifact must report complete; a phase cannot be closed
out while its agent still considers it running.

When every phase is done the orchestration moves to reviewing; running
complete again finishes it.`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

var completeNextPrompt string

func init() {
	rootCmd.AddCommand(completeCmd)
	completeCmd.Flags().StringVar(&completeNextPrompt, "next-prompt", "", "Start the next phase immediately with this kickoff prompt")
}

func runComplete(cmd *cobra.Command, args []string) error {
	feature := args[0]

	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}
	defer closeDeps()

	coord := deps.coordinator()
	orch, err := deps.store.FetchOrchestrationByFeature(cmd.Context(), feature)
	if err != nil {
		return err
	}

	if orch.Status == state.StatusReviewing {
		if err := coord.Finish(cmd.Context(), feature); err != nil {
			return err
		}
		fmt.Printf("Completed %s\n", feature)
		return nil
	}

	if err := coord.CompletePhase(cmd.Context(), feature); err != nil {
		return err
	}

	orch, err = deps.store.FetchOrchestrationByFeature(cmd.Context(), feature)
	if err != nil {
		return err
	}
	if orch.Status == state.StatusReviewing {
		fmt.Printf("All phases of %s complete; run 'overseer complete %s' again to finish\n", feature, feature)
		return nil
	}

	fmt.Printf("Phase complete; %s is now on phase %d/%d\n", feature, orch.CurrentPhase, orch.TotalPhases)
	if completeNextPrompt != "" {
		if err := coord.StartNextPhase(cmd.Context(), feature, completeNextPrompt); err != nil {
			return err
		}
		fmt.Printf("Started phase %d\n", orch.CurrentPhase)
	}
	return nil
}
