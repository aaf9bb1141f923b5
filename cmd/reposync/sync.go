package reposync

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync [project-or-group ...]",
	Short: "Synchronize the workspace against the active manifest",
	Long: "Run the full two-phase sync: fetch every selected project's " +
		"network half in parallel, then reconcile each worktree's local " +
		"half, then reconcile the on-disk project set against the " +
		"manifest. An empty argument list selects every project.",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cfg, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		debugf(cmd, "starting sync")

		groups, _ := cmd.Flags().GetString("groups")
		jobs, _ := cmd.Flags().GetInt("jobs")
		force, _ := cmd.Flags().GetBool("force")
		forceBroken, _ := cmd.Flags().GetBool("force-broken")
		detach, _ := cmd.Flags().GetBool("detach")
		currentBranchOnly, _ := cmd.Flags().GetBool("current-branch")
		noTags, _ := cmd.Flags().GetBool("no-tags")
		quiet, _ := cmd.Flags().GetBool("quiet-fetch")
		noCloneBundle, _ := cmd.Flags().GetBool("no-clone-bundle")
		optimizedFetch, _ := cmd.Flags().GetBool("optimized-fetch")
		depth, _ := cmd.Flags().GetInt("depth")
		smartSyncBranch, _ := cmd.Flags().GetString("smart-sync-branch")
		smartSyncTarget, _ := cmd.Flags().GetString("smart-sync-target")

		mineEmail := cfg.User.Email

		start := time.Now()
		report, err := eng.Sync(cmd.Context(), engine.SyncOptions{
			Args:              args,
			GroupsExpr:        groups,
			Jobs:              jobs,
			Force:             force,
			ForceBroken:       forceBroken,
			Detach:            detach,
			CurrentBranchOnly: currentBranchOnly,
			NoTags:            noTags,
			Quiet:             quiet,
			CloneBundle:       !noCloneBundle,
			OptimizedFetch:    optimizedFetch,
			GlobalDepth:       depth,
			MineEmail:         mineEmail,
			SmartSyncBranch:   smartSyncBranch,
			SmartSyncTarget:   smartSyncTarget,
			Output:            cmd.OutOrStdout(),
		})
		if err != nil {
			raiseExitCode(cmd, exitCodeFor(err))
			return err
		}

		writeSyncSummary(cmd, report, time.Since(start))

		if !report.Clean {
			raiseExitCode(cmd, 1)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().String("groups", "", "group expression filtering the selected projects (e.g. \"all,-notdefault\")")
	syncCmd.Flags().IntP("jobs", "j", 0, "max concurrent network fetches (default: fd-limit derived)")
	syncCmd.Flags().Bool("force", false, "continue past local-reconciliation failures instead of aborting")
	syncCmd.Flags().Bool("force-broken", false, "keep starting new fetch groups even after a network failure")
	syncCmd.Flags().BoolP("detach", "d", false, "detach every selected project's HEAD to its target revision")
	syncCmd.Flags().BoolP("current-branch", "c", false, "fetch only the manifest-declared branch, not all heads")
	syncCmd.Flags().Bool("no-tags", false, "skip fetching tags")
	syncCmd.Flags().Bool("quiet-fetch", false, "suppress per-project fetch progress output")
	syncCmd.Flags().Bool("no-clone-bundle", false, "skip the clone-bundle bootstrap optimization")
	syncCmd.Flags().BoolP("optimized-fetch", "u", true, "skip the network entirely for sha-pinned revisions already present locally")
	syncCmd.Flags().Int("depth", 0, "global default clone depth (0 = full history)")
	syncCmd.Flags().String("smart-sync-branch", "", "fetch a server-approved manifest for this branch before syncing")
	syncCmd.Flags().String("smart-sync-target", "", "optional target product/variant passed to the smart-sync server")
	rootCmd.AddCommand(syncCmd)
}

func writeSyncSummary(cmd *cobra.Command, report *engine.SyncReport, elapsed time.Duration) {
	if report.SmartSyncApplied {
		infof(cmd, "smart-sync: applied server-approved manifest")
	}
	infof(cmd, "fetched %s project(s)", humanizeCount(report.FetchedProjects))
	for i, round := range report.SubmoduleRounds {
		infof(cmd, "submodule discovery round %d: %s newly registered", i+1, humanizeCount(len(round.NewChildren)))
	}
	if len(report.RemovedProjects) > 0 {
		infof(cmd, "removed %s project(s) no longer in the manifest: %s", humanizeCount(len(report.RemovedProjects)), strings.Join(report.RemovedProjects, ", "))
	}
	if len(report.FailedProjects) > 0 {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "sync failed for: %s\n", strings.Join(report.FailedProjects, ", "))
	}
	if report.Clean {
		infof(cmd, "sync completed cleanly in %s", humanizeSeconds(elapsed.Seconds()))
	}
}
