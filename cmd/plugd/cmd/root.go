// Package cmd provides the CLI commands for the plugd daemon and its
// control client.
package cmd

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "plugd",
	Short: "Dynamic plugin supervisor daemon and control client",
	Long:  `plugd supervises auxiliary worker processes (plugins) and lets an operator start, stop, rescan and list them at runtime over a control channel, without restarting the daemon.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
