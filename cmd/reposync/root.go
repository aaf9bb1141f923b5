// Package reposync contains the Cobra command tree for the reposync CLI:
// the thin command surface around internal/engine's synchronization
// engine. Grounded on cmd/repokeeper/root.go's runtimeState-in-context /
// severity-ordered exit code pattern.
package reposync

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagVerbose int
	flagQuiet   bool
	flagConfig  string
	flagNoColor bool
	// isTerminalFD is overridable in tests.
	isTerminalFD = term.IsTerminal
	// exitFunc is overridable in tests.
	exitFunc = os.Exit
)

type runtimeStateKey struct{}

type runtimeState struct {
	colorOutputEnabled bool
	exitCode           int
}

var rootCmd = &cobra.Command{
	Use:   "reposync",
	Short: "Multi-repository workspace synchronization engine",
	Long:  "reposync materializes and reconciles a local workspace against a declarative manifest of upstream repositories: init, sync, status, branch management, and manifest inspection.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// NO_COLOR is a standard opt-out and should behave like --no-color.
		if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
			flagNoColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase output verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "override config file path")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and calls os.Exit with the resulting code.
func Execute() {
	exitFunc(ExecuteWithExitCode())
}

// ExecuteWithExitCode runs the root command and returns a shell-friendly
// exit code: 0 success, 1 any sync error, 128 fatal re-exec failure, 255
// pager failure. status also returns 2 when a project reports an error.
func ExecuteWithExitCode() int {
	state := &runtimeState{}
	rootCmd.SetContext(context.WithValue(context.Background(), runtimeStateKey{}, state))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if state.exitCode == 0 {
			state.exitCode = 1
		}
		return state.exitCode
	}
	return state.exitCode
}

func raiseExitCode(cmd *cobra.Command, code int) {
	state := runtimeStateFor(cmd)
	if code > state.exitCode {
		state.exitCode = code
	}
}

func infof(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func debugf(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet || flagVerbose <= 0 {
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

func setColorOutputMode(cmd *cobra.Command) {
	runtimeStateFor(cmd).colorOutputEnabled = shouldUseColorOutput(cmd)
}

func shouldUseColorOutput(cmd *cobra.Command) bool {
	if flagNoColor {
		return false
	}
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return isTerminalFD(int(file.Fd()))
}

func runtimeStateFor(cmd *cobra.Command) *runtimeState {
	root := cmd
	if root != nil {
		root = cmd.Root()
	}
	if root == nil {
		root = rootCmd
	}
	ctx := root.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if state, ok := ctx.Value(runtimeStateKey{}).(*runtimeState); ok && state != nil {
		return state
	}
	state := &runtimeState{}
	root.SetContext(context.WithValue(ctx, runtimeStateKey{}, state))
	return state
}
