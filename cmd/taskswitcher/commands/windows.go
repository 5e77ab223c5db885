package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bryanchriswhite/TaskSwitcher/internal/helper"
	"github.com/bryanchriswhite/TaskSwitcher/internal/platform"
	"github.com/bryanchriswhite/TaskSwitcher/internal/window"
	"github.com/spf13/cobra"
)

var windowsCmd = &cobra.Command{
	Use:     "windows",
	Aliases: []string{"list"},
	Short:   "List open windows",
	Long: `List the windows the configured platform sources can see.

Windows on other desktops are only included while the server's cache
remembers them, so a one-off listing shows what is visible right now.`,
	Example: `  # List windows in table format (default)
  taskswitcher windows

  # List windows in JSON format
  taskswitcher windows --format json`,
	RunE: runWindows,
}

var windowsFormat string

func init() {
	rootCmd.AddCommand(windowsCmd)

	windowsCmd.Flags().StringVarP(&windowsFormat, "format", "f", "table", "output format (table or json)")
}

func runWindows(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	comps := platform.Build(cfg, nil, helper.ExecRunner{})
	defer comps.Close()

	windows := comps.Engine.ListWindows(cmd.Context())
	return printWindows(cmd.OutOrStdout(), windows, windowsFormat)
}

func printWindows(out io.Writer, windows []window.Descriptor, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		if len(windows) == 0 {
			fmt.Fprintln(out, "No windows found.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAPP\tTITLE")
		for _, d := range windows {
			fmt.Fprintf(w, "%d\t%s\t%s\n", d.SyntheticID, d.OwnerAppName, d.Title)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", format)
	}
}
