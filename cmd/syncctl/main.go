// Command syncctl runs one-off maintenance tasks against the same stores
// the server uses: migrations, reconciliation, recurring expansion and the
// sync retry queue.
package main

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/remindsync/internal/server/config"
	"github.com/spf13/cobra"
)

var loadConfig = config.LoadConfig

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "syncctl",
		Short: "Maintenance commands for remindsync",
		// Server flags (-d, -s, -m ...) are read by the config loader.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to JSON config file")

	root.AddCommand(migrateCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(expandCmd())
	root.AddCommand(retriesCmd())
	return root
}
