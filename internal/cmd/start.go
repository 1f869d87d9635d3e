package cmd

import (
	"fmt"

	"github.com/overclockedllc/overseer/internal/state"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <feature>",
	Short: "Start the feature's current phase session",
	Long: `Start moves a planned orchestration to executing, creates the tmux
session for the current phase, waits until the agent inside it is ready,
and sends the kickoff prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var (
	startPrompt string
	startTeam   string
)

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringVarP(&startPrompt, "prompt", "p", "", "Kickoff prompt sent to the agent once ready")
	startCmd.Flags().StringVar(&startTeam, "team", "", "Team name recorded on the phase")
}

func runStart(cmd *cobra.Command, args []string) error {
	feature := args[0]

	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}
	defer closeDeps()

	coord := deps.coordinator()
	if err := coord.Start(cmd.Context(), feature, startPrompt); err != nil {
		return err
	}

	if startTeam != "" {
		team := &state.Team{
			Name: startTeam,
			Lead: state.Agent{Name: startTeam + "-lead", Role: state.RoleLead, Alive: true},
		}
		if err := coord.AssignTeam(cmd.Context(), feature, team); err != nil {
			return err
		}
	}

	fmt.Printf("Started %s\n", feature)
	return nil
}
