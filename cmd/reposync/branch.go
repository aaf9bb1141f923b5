package reposync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/engine"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/repo"
	"github.com/skaphos/reposync/internal/selector"
	"github.com/skaphos/reposync/internal/synerr"
)

var startCmd = &cobra.Command{
	Use:   "start <branch-name> [project-or-group ...]",
	Short: "Start a topic branch tracking each selected project's manifest revision",
	Long: "Creates (or reuses) a local branch named branch-name in every " +
		"selected project, tracking that project's manifest-declared " +
		"revision, so one topic branch spans the whole checkout.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := args[0]
		selected, eng, err := selectedProjects(cmd, args[1:])
		if err != nil {
			return err
		}
		var failed []string
		for _, p := range selected {
			h := repo.New(p, eng.Driver, eng.Runner)
			if err := h.StartBranch(cmd.Context(), branch, p.RevisionExpr); err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", p.Name, err)
				failed = append(failed, p.Name)
				continue
			}
			infof(cmd, "%s: started branch %s tracking %s", p.Name, branch, p.RevisionExpr)
		}
		if len(failed) > 0 {
			raiseExitCode(cmd, 1)
			return synerr.New(synerr.KindGitOperation, "", fmt.Errorf("failed to start branch %s in: %v", branch, failed))
		}
		return nil
	},
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <branch-name> [project-or-group ...]",
	Short: "Abandon a topic branch across selected projects",
	Long: "Deletes the local branch branch-name from every selected " +
		"project; refuses (per project) if the branch is currently " +
		"checked out there. Pairs with `start`: start then abandon " +
		"returns each repository to its pre-start state.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := args[0]
		selected, eng, err := selectedProjects(cmd, args[1:])
		if err != nil {
			return err
		}
		var failed []string
		for _, p := range selected {
			h := repo.New(p, eng.Driver, eng.Runner)
			if err := h.AbandonBranch(cmd.Context(), branch); err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", p.Name, err)
				failed = append(failed, p.Name)
				continue
			}
			infof(cmd, "%s: abandoned branch %s", p.Name, branch)
		}
		if len(failed) > 0 {
			raiseExitCode(cmd, 1)
			return synerr.New(synerr.KindGitOperation, "", fmt.Errorf("failed to abandon branch %s in: %v", branch, failed))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd, abandonCmd)
}

// selectedProjects resolves args against the active manifest's project
// set via the group/path selector, the shared entry point start and
// abandon use to fan a branch operation out across many repositories.
func selectedProjects(cmd *cobra.Command, args []string) ([]*model.Project, *engine.Engine, error) {
	eng, _, err := loadEngine(cmd)
	if err != nil {
		return nil, nil, err
	}
	m, err := eng.LoadManifest()
	if err != nil {
		return nil, nil, err
	}
	arena := eng.BuildArena(m)
	resolved, err := selector.Resolve(arena.Projects, args, eng.WorkspaceRoot, nil)
	if err != nil {
		return nil, nil, synerr.New(synerr.KindNoSuchProject, "", err)
	}
	return resolved, eng, nil
}
