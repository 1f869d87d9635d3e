package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <feature>",
	Short: "Resume a blocked orchestration",
	Long: `Recover moves a blocked orchestration back to executing and restarts
the blocked phase's session. Only blocked orchestrations can be recovered.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

var recoverPrompt string

func init() {
	rootCmd.AddCommand(recoverCmd)
	recoverCmd.Flags().StringVarP(&recoverPrompt, "prompt", "p", "", "Prompt sent to the restarted agent once ready")
}

func runRecover(cmd *cobra.Command, args []string) error {
	feature := args[0]

	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}
	defer closeDeps()

	if err := deps.coordinator().Recover(cmd.Context(), feature, recoverPrompt); err != nil {
		return err
	}

	fmt.Printf("Recovered %s\n", feature)
	return nil
}
