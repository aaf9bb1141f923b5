package reposync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/config"
	"github.com/skaphos/reposync/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init <manifest-file>",
	Short: "Initialize a workspace from a manifest document",
	Long: "Initialize a workspace: copy the given manifest XML document into " +
		"the workspace metadata directory and write a default config. " +
		"Fetching the manifest repository itself is out of scope; this " +
		"command operates on an already-resolved local manifest file.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading manifest: %w", err)
		}
		// Validate the document parses before committing it to the workspace.
		tmp, err := os.CreateTemp("", "reposync-manifest-*.xml")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return err
		}
		tmp.Close()
		if _, err := manifest.Load(tmp.Name(), ""); err != nil {
			return fmt.Errorf("invalid manifest: %w", err)
		}

		metaDir := filepath.Join(cwd, ".reposync")
		if err := os.MkdirAll(metaDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(metaDir, "manifest.xml"), data, 0o644); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Join(metaDir, "local_manifests"), 0o755); err != nil {
			return err
		}

		mirror, _ := cmd.Flags().GetBool("mirror")
		depth, _ := cmd.Flags().GetInt("depth")
		userName, _ := cmd.Flags().GetString("user-name")
		userEmail, _ := cmd.Flags().GetString("user-email")

		cfgPath, err := config.InitConfigPath(flagConfig, cwd)
		if err != nil {
			return err
		}
		cfg := config.DefaultConfig()
		cfg.Repo.Mirror = mirror
		cfg.Repo.Depth = depth
		cfg.User.Name = userName
		cfg.User.Email = userEmail
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}

		infof(cmd, "initialized workspace at %s (config %s)", cwd, cfgPath)
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("mirror", false, "initialize as a mirror workspace (no worktrees)")
	initCmd.Flags().Int("depth", 0, "global default clone depth (0 = full history)")
	initCmd.Flags().String("user-name", "", "committer name for the mine/not-mine partition in local reconciliation")
	initCmd.Flags().String("user-email", "", "committer email for the mine/not-mine partition in local reconciliation")
	rootCmd.AddCommand(initCmd)
}
