package reposync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/selector"
	"github.com/skaphos/reposync/internal/synerr"
	"github.com/skaphos/reposync/internal/tableutil"
)

var listCmd = &cobra.Command{
	Use:   "list [project-or-group ...]",
	Short: "Preview the project set a sync argument list resolves to",
	Long: "Resolves names, paths, and group expressions to a concrete, " +
		"relpath-sorted project list without fetching or touching any " +
		"worktree.",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		m, err := eng.LoadManifest()
		if err != nil {
			return err
		}
		arena := eng.BuildArena(m)

		selected, err := selector.Resolve(arena.Projects, args, eng.WorkspaceRoot, nil)
		if err != nil {
			return synerr.New(synerr.KindNoSuchProject, "", err)
		}
		if groups, _ := cmd.Flags().GetString("groups"); groups != "" {
			selected = selector.FilterByGroups(selected, groups)
		}

		noHeaders, _ := cmd.Flags().GetBool("no-headers")
		w := tableutil.New(cmd.OutOrStdout(), false)
		if err := tableutil.PrintHeaders(w, noHeaders, "NAME\tPATH\tREVISION\tGROUPS"); err != nil {
			return err
		}
		for _, p := range selected {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.RelPath, p.RevisionExpr, joinGroups(p.Groups)); err != nil {
				return err
			}
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().String("groups", "", "group expression filtering the listed projects")
	listCmd.Flags().Bool("no-headers", false, "do not print the header row")
	rootCmd.AddCommand(listCmd)
}

func joinGroups(groups []string) string {
	out := ""
	for i, g := range groups {
		if i > 0 {
			out += ","
		}
		out += g
	}
	if out == "" {
		return "-"
	}
	return out
}
