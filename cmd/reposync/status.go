package reposync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/tableutil"
	"github.com/skaphos/reposync/internal/termstyle"
)

var statusCmd = &cobra.Command{
	Use:   "status [project-or-group ...]",
	Short: "Report the live worktree status of selected projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		debugf(cmd, "starting status")

		report, err := eng.Status(cmd.Context(), args)
		if err != nil {
			return err
		}

		noHeaders, _ := cmd.Flags().GetBool("no-headers")
		setColorOutputMode(cmd)
		if err := writeStatusTable(cmd, report, noHeaders); err != nil {
			return err
		}

		if code := statusExitCode(report); code > 0 {
			raiseExitCode(cmd, code)
		}
		infof(cmd, "status completed: %s project(s)", humanizeCount(len(report.Projects)))
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("no-headers", false, "when using table output, do not print headers")
	rootCmd.AddCommand(statusCmd)
}

func writeStatusTable(cmd *cobra.Command, report *model.StatusReport, noHeaders bool) error {
	w := tableutil.New(cmd.OutOrStdout(), true)
	if err := tableutil.PrintHeaders(w, noHeaders, "NAME\tPATH\tTYPE\tBRANCH\tDIRTY\tTRACKING\tSUBMODULES\tERROR"); err != nil {
		return err
	}
	colorEnabled := runtimeStateFor(cmd).colorOutputEnabled
	for _, p := range report.Projects {
		branch := p.Head.Branch
		if p.Head.Detached {
			branch = "detached:" + branch
		}
		if p.Type == "mirror" {
			branch = "-"
		}
		dirty := "-"
		if p.Worktree != nil {
			if p.Worktree.Dirty {
				dirty = termstyle.Colorize(colorEnabled, "yes", termstyle.Warn)
			} else {
				dirty = termstyle.Colorize(colorEnabled, "no", termstyle.Healthy)
			}
		}
		tracking := displayTrackingStatus(colorEnabled, p.Tracking.Status)
		if p.Type == "mirror" {
			tracking = termstyle.Colorize(colorEnabled, "mirror", termstyle.Info)
		}
		submodules := "no"
		if p.HasSubmodules {
			submodules = "yes"
		}
		errCell := p.Error
		if errCell == "" {
			errCell = "-"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Name, p.RelPath, p.Type, branch, dirty, tracking, submodules, errCell); err != nil {
			return err
		}
	}
	return w.Flush()
}

func displayTrackingStatus(colorEnabled bool, status model.TrackingStatus) string {
	switch status {
	case model.TrackingEqual:
		return termstyle.Colorize(colorEnabled, "up to date", termstyle.Healthy)
	case model.TrackingDiverged, model.TrackingGone:
		return termstyle.Colorize(colorEnabled, string(status), termstyle.Error)
	default:
		return string(status)
	}
}

func statusExitCode(report *model.StatusReport) int {
	code := 0
	for _, p := range report.Projects {
		switch {
		case p.Error != "":
			code = 2
		case p.Tracking.Status == model.TrackingGone || p.Tracking.Status == model.TrackingDiverged:
			if code < 1 {
				code = 1
			}
		case p.Worktree != nil && p.Worktree.Dirty:
			if code < 1 {
				code = 1
			}
		}
	}
	return code
}
