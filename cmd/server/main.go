/*
main.go - Application entry point

PURPOSE:
  Command-line entry point of the cafeteria reservation engine.

COMMANDS:
  serve     HTTP API plus the daily auto-reservation scheduler
  batch     Run the auto-reservation batch once and exit
  version   Print build information

GLOBAL FLAGS:
  --config  Optional YAML configuration file. Environment variables (and a
            .env file in the working directory) override it.

EXAMPLES:
  # Run with the default SQLite file
  ./cafeteria serve

  # Run against PostgreSQL with a Redis menu cache
  DB_DRIVER=postgres DATABASE_URL=postgres://... REDIS_URL=redis://localhost:6379/0 ./cafeteria serve

  # Book next Monday by hand
  ./cafeteria batch --date 2025-03-10

SEE ALSO:
  - app.go: Dependency wiring shared by serve and batch
  - config/config.go: Configuration keys
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "cafeteria",
		Short:         "Cafeteria meal reservation engine with daily auto-reservation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newBatchCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cafeteria %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
