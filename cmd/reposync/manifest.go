package reposync

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/manifest"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect the active manifest document",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Parse and re-serialize the active manifest",
	Long: "Loads the active manifest (including local_manifests/ fragments " +
		"and any smart-sync override) and re-renders it, exercising the " +
		"save→parse→save round trip.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng, _, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		m, err := eng.LoadManifest()
		if err != nil {
			return err
		}
		doc, err := manifest.Render(m)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	},
}

var manifestValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the active manifest without printing it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		eng, _, err := loadEngine(cmd)
		if err != nil {
			return err
		}
		m, err := eng.LoadManifest()
		if err != nil {
			raiseExitCode(cmd, 1)
			return err
		}
		flat := m.Flatten()
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "manifest OK: %d remote(s), %d project(s)\n", len(m.Remotes), len(flat))
		return err
	},
}

func init() {
	manifestCmd.AddCommand(manifestShowCmd, manifestValidateCmd)
	rootCmd.AddCommand(manifestCmd)
}
