package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <feature>",
	Short: "Tear down a feature's sessions and registry record",
	Long: `Cleanup gracefully shuts down every phase session belonging to the
feature and removes its registry record. The orchestration row stays in the
store as history. An unknown feature exits non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	feature := args[0]

	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}
	defer closeDeps()

	if err := deps.coordinator().Cleanup(cmd.Context(), feature); err != nil {
		return err
	}

	fmt.Printf("Cleaned up %s\n", feature)
	return nil
}
