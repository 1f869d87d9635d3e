package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/overclockedllc/overseer/internal/errors"
	"github.com/overclockedllc/overseer/internal/state"
	"github.com/overclockedllc/overseer/internal/tmux"
	"github.com/overclockedllc/overseer/internal/worktree"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered features and their session liveness",
	RunE:  runList,
}

var (
	listHeaderStyle  = lipgloss.NewStyle().Bold(true)
	listFeatureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	listLiveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	listDeadStyle    = lipgloss.NewStyle().Faint(true)
	listBlockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	deps, closeDeps, err := buildDeps()
	if err != nil {
		return err
	}
	defer closeDeps()

	records, err := deps.registry.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No registered features.")
		return nil
	}

	var live map[string][]int
	if sessions, err := deps.tmux.ListSessions(cmd.Context()); err == nil {
		live = liveSessionsByFeature(sessions)
	}

	fmt.Println(listHeaderStyle.Render("FEATURE          STATUS      PHASE    BRANCH            SESSION"))
	for _, rec := range records {
		statusPlain := "unknown"
		statusStyle := listDeadStyle
		phaseCol := "-"
		sessionCol := listDeadStyle.Render("none")
		livePhases := live[tmux.SanitizeFeature(rec.Feature)]

		orch, err := deps.store.FetchOrchestrationByFeature(cmd.Context(), rec.Feature)
		if err == nil {
			statusPlain = string(orch.Status)
			statusStyle = lipgloss.NewStyle()
			phaseCol = fmt.Sprintf("%d/%d", orch.CurrentPhase, orch.TotalPhases)

			if slices.Contains(livePhases, orch.CurrentPhase) {
				sessionCol = listLiveStyle.Render(orch.SessionName(orch.CurrentPhase))
			}
			if orch.Status == state.StatusBlocked {
				statusStyle = listBlockedStyle
			}
		} else if !errors.IsNotFound(err) {
			return err
		} else if len(livePhases) > 0 {
			// No store row, but tmux still holds a session for the
			// feature. Name it so the operator can clean it up.
			sessionCol = listLiveStyle.Render(tmux.SessionName(rec.Feature, livePhases[0]))
		}

		branch := worktreeBranch(rec.Worktree)

		fmt.Printf("%s %s %s %s %s\n",
			pad(listFeatureStyle.Render(rec.Feature), rec.Feature, 16),
			pad(statusStyle.Render(statusPlain), statusPlain, 11),
			pad(phaseCol, phaseCol, 8),
			pad(branch, branch, 17),
			sessionCol)
	}
	return nil
}

// liveSessionsByFeature groups live overseer session names by sanitized
// feature, each mapping to the sorted phase numbers with a live session.
// Names not produced by overseer are ignored.
func liveSessionsByFeature(sessions []string) map[string][]int {
	live := map[string][]int{}
	for _, s := range sessions {
		feature, phase, ok := tmux.ParseSessionName(s)
		if !ok {
			continue
		}
		live[feature] = append(live[feature], phase)
	}
	for _, phases := range live {
		slices.Sort(phases)
	}
	return live
}

// worktreeBranch reports the branch checked out in a record's worktree, or
// "-" when the directory is gone or not a repository.
func worktreeBranch(dir string) string {
	git := worktree.NewGit(dir)
	if !git.IsRepo() {
		return "-"
	}
	branch, err := git.CurrentBranch()
	if err != nil || branch == "" {
		return "-"
	}
	return branch
}

// pad right-pads styled text based on its unstyled width so columns line up.
func pad(styled, plain string, width int) string {
	if len(plain) >= width {
		return styled
	}
	return styled + strings.Repeat(" ", width-len(plain))
}
