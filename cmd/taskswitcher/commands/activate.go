package commands

import (
	"fmt"

	"github.com/bryanchriswhite/TaskSwitcher/internal/activation"
	"github.com/bryanchriswhite/TaskSwitcher/internal/helper"
	"github.com/bryanchriswhite/TaskSwitcher/internal/platform"
	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate APP [TITLE]",
	Short: "Bring an application window to the front",
	Long: `Activate an application, raising the window whose title matches TITLE
when one is given. Strategies are tried in order until one succeeds.`,
	Example: `  # Bring Finder to the front
  taskswitcher activate Finder

  # Raise a specific VS Code window
  taskswitcher activate Code "project-a"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runActivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
}

func runActivate(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	comps := platform.Build(cfg, nil, helper.ExecRunner{})
	defer comps.Close()

	title := ""
	if len(args) > 1 {
		title = args[1]
	}

	out, err := comps.Chain.Run(cmd.Context(), activation.Request{App: args[0], TitlePattern: title})
	if err != nil {
		return err
	}

	fmt.Printf("✅ Activated %s via %s (%s)\n", args[0], out.Strategy, out.Duration)
	return nil
}
