package reposync

import (
	"errors"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/skaphos/reposync/internal/config"
	"github.com/skaphos/reposync/internal/engine"
	"github.com/skaphos/reposync/internal/synerr"
)

// loadEngine resolves config from the --config flag / REPOSYNC_CONFIG env
// / nearest dotfile / platform default, then builds an Engine rooted at
// cwd. A missing config file falls back to config.DefaultConfig() so
// `reposync sync` works against an already-initialized workspace even
// before any `reposync init --config` write (init itself always writes
// one; this tolerates a hand-authored manifest.xml without a config).
func loadEngine(cmd *cobra.Command) (*engine.Engine, *config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, err
		}
		defaults := config.DefaultConfig()
		cfg = &defaults
	}
	debugf(cmd, "using config %s", cfgPath)
	eng := engine.New(cfg, cwd, nil)
	return eng, cfg, nil
}

// exitCodeFor maps a Sync/Status error onto process return codes: 0
// success, 1 any sync error, 128 fatal re-exec failure, 255 pager
// failure. This CLI has no pager or self-update re-exec path, so those
// two codes are reserved but unreachable here; every engine-surfaced
// error is a sync error.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var se *synerr.Error
	if errors.As(err, &se) && se.Kind == synerr.KindRepoChanged {
		return 128
	}
	return 1
}

// humanizeSeconds renders a fetch-time estimate compactly ("1.2s"),
// trimming trailing zeros the way go-humanize's Ftoa helpers do for
// other magnitudes in table output.
func humanizeSeconds(seconds float64) string {
	return humanize.FtoaWithDigits(seconds, 1) + "s"
}

// humanizeCount renders an integer count with thousands separators.
func humanizeCount(n int) string {
	return humanize.Comma(int64(n))
}
