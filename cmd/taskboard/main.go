// Command taskboard manages projects and tasks against an embedded store or
// a remote taskboard backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	remoteURL    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Projects and tasks, kept in sync with a taskboard backend",
	Long: `taskboard keeps a local view of your projects and tasks in sync with a
backend: either the embedded store (default) or a server started with
'taskboard serve' (--remote URL).

Reads are served from a cache that is refreshed after every confirmed write
and whenever the session changes. Configuration is read from taskboard.toml
in the working directory or ~/.taskboard/, then TASKBOARD_* environment
variables, then flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initColor()
		return checkFormat(outputFormat)
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "data", Title: "Projects and tasks:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./taskboard.toml, then ~/.taskboard/taskboard.toml)")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "Backend URL; overrides remote.url (empty uses the embedded store)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "", "Output format: text, yaml or json")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", renderFail("Error:"), describeError(err))
		os.Exit(1)
	}
}
