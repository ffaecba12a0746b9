package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	controlAddr  string
	watchPlugins bool
	watchRefresh time.Duration
)

// pluginCmd represents the plugin command: the runtime control client.
var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Control plugins of a running daemon",
	Long: `Control plugins without restarting the daemon.

Usage:
  plugd plugin start /path/to/a/plugin
      adds a new plugin to the daemon
  plugd plugin stop plugin_name
      stops an already registered plugin
  plugd plugin startdir /path/to/a/plugin_dir/
      adds a new plugin directory
  plugd plugin rescan
      loads not-already-loaded plugins from the default plugins dir
  plugd plugin list
      lists all known plugins`,
}

var pluginStartCmd = &cobra.Command{
	Use:   "start PATH",
	Short: "Start a plugin from an executable path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := sendControl(controlAddr, map[string]any{
			"subcommand": "start",
			"plugin":     args[0],
		})
		if err != nil {
			return err
		}

		return printPluginTable(cmd, res)
	},
}

var pluginStopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a running dynamic plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := sendControl(controlAddr, map[string]any{
			"subcommand": "stop",
			"plugin":     args[0],
		})
		if err != nil {
			return err
		}

		cmd.Println(res.Get("result").String())

		return nil
	},
}

var pluginStartDirCmd = &cobra.Command{
	Use:   "startdir DIRECTORY",
	Short: "Start every new plugin found under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := sendControl(controlAddr, map[string]any{
			"subcommand": "startdir",
			"directory":  args[0],
		})
		if err != nil {
			return err
		}

		return printPluginTable(cmd, res)
	},
}

var pluginRescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Load new plugins from the daemon's default plugin directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		res, err := sendControl(controlAddr, map[string]any{"subcommand": "rescan"})
		if err != nil {
			return err
		}

		return printPluginTable(cmd, res)
	},
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known plugins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if watchPlugins {
			return runPluginWatch(controlAddr, watchRefresh)
		}

		res, err := sendControl(controlAddr, map[string]any{"subcommand": "list"})
		if err != nil {
			return err
		}

		return printPluginTable(cmd, res)
	},
}

// printPluginTable renders a {plugins:[{name,active}]} result as an aligned table.
func printPluginTable(cmd *cobra.Command, res gjson.Result) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Name\tActive")
	fmt.Fprintln(w, "----\t------")
	res.Get("plugins").ForEach(func(_, p gjson.Result) bool {
		fmt.Fprintf(w, "%s\t%t\n", p.Get("name").String(), p.Get("active").Bool())

		return true
	})

	return w.Flush()
}

func init() {
	rootCmd.AddCommand(pluginCmd)
	pluginCmd.AddCommand(pluginStartCmd, pluginStopCmd, pluginStartDirCmd, pluginRescanCmd, pluginListCmd)

	pluginCmd.PersistentFlags().
		StringVarP(&controlAddr, "address", "a", "localhost:7301", "Daemon control address")
	pluginListCmd.Flags().BoolVar(&watchPlugins, "watch", false, "Continuously refresh the plugin table")
	pluginListCmd.Flags().
		DurationVar(&watchRefresh, "refresh", 2*time.Second, "Refresh interval for --watch")
}
