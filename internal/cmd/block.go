package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var blockCmd = &cobra.Command{
	Use:   "block <feature> <reason>",
	Short: "Mark the current phase blocked",
	Long: `Block marks the orchestration and its current phase blocked. The reason
is required and is recorded on the phase and in the comment trail.`,
	Args: cobra.ExactArgs(2),
	RunE: runBlock,
}

func init() {
	rootCmd.AddCommand(blockCmd)
}

func runBlock(cmd *cobra.Command, args []string) error {
	feature, reason := args[0], args[1]

	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}
	defer closeDeps()

	if err := deps.coordinator().Block(cmd.Context(), feature, reason); err != nil {
		return err
	}

	fmt.Printf("Blocked %s: %s\n", feature, reason)
	return nil
}
