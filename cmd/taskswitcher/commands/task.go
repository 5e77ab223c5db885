package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/TaskSwitcher/internal/activation"
	"github.com/bryanchriswhite/TaskSwitcher/internal/helper"
	"github.com/bryanchriswhite/TaskSwitcher/internal/platform"
	"github.com/bryanchriswhite/TaskSwitcher/internal/store"
	"github.com/bryanchriswhite/TaskSwitcher/internal/switcher"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
	Long:  `Create, complete and switch between tasks and the windows attached to them.`,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Example: `  # Show the task tree
  taskswitcher task list

  # Show tasks as JSON
  taskswitcher task list --format json`,
	Args: cobra.NoArgs,
	RunE: runTaskList,
}

var taskAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a task",
	Example: `  # Create a top-level task
  taskswitcher task add "Quarterly report"

  # Create a subtask
  taskswitcher task add "Collect numbers" --parent <task-id>`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskAdd,
}

var taskRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"remove"},
	Short:   "Delete a task, its subtasks and their windows",
	Args:    cobra.ExactArgs(1),
	RunE:    runTaskRemove,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done ID",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDone,
}

var taskSwitchCmd = &cobra.Command{
	Use:   "switch ID",
	Short: "Bring every window of a task to the front",
	Long: `Activate every window attached to a task. Browser tabs need the
browser extension relay, which only runs inside 'taskswitcher serve'; use
POST /api/tasks/{id}/switch on a running server to restore tabs too.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskSwitch,
}

var taskWindowCmd = &cobra.Command{
	Use:   "window",
	Short: "Manage the windows attached to a task",
}

var taskWindowListCmd = &cobra.Command{
	Use:   "list TASK_ID",
	Short: "List a task's windows",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskWindowList,
}

var taskWindowAddCmd = &cobra.Command{
	Use:   "add TASK_ID",
	Short: "Attach a window or browser tab to a task",
	Example: `  # Attach a VS Code window
  taskswitcher task window add <task-id> --app Code --title project-a

  # Attach a browser tab by URL
  taskswitcher task window add <task-id> --url github.com/org/repo`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskWindowAdd,
}

var taskWindowRemoveCmd = &cobra.Command{
	Use:     "rm WINDOW_ID",
	Aliases: []string{"remove"},
	Short:   "Detach a window from its task",
	Args:    cobra.ExactArgs(1),
	RunE:    runTaskWindowRemove,
}

var (
	taskFormat     string
	taskParent     string
	taskUndo       bool
	windowApp      string
	windowTitle    string
	windowURL      string
	windowTabTitle string
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd, taskAddCmd, taskRemoveCmd, taskDoneCmd, taskSwitchCmd, taskWindowCmd)
	taskWindowCmd.AddCommand(taskWindowListCmd, taskWindowAddCmd, taskWindowRemoveCmd)

	taskListCmd.Flags().StringVarP(&taskFormat, "format", "f", "table", "output format (table or json)")
	taskAddCmd.Flags().StringVar(&taskParent, "parent", "", "parent task ID")
	taskDoneCmd.Flags().BoolVar(&taskUndo, "undo", false, "mark the task as not completed")

	taskWindowAddCmd.Flags().StringVar(&windowApp, "app", "", "application name")
	taskWindowAddCmd.Flags().StringVar(&windowTitle, "title", "", "window title pattern")
	taskWindowAddCmd.Flags().StringVar(&windowURL, "url", "", "browser tab URL pattern")
	taskWindowAddCmd.Flags().StringVar(&windowTabTitle, "tab-title", "", "browser tab title pattern")
	taskWindowAddCmd.MarkFlagsMutuallyExclusive("app", "url")
	taskWindowAddCmd.MarkFlagsMutuallyExclusive("app", "tab-title")
	taskWindowAddCmd.MarkFlagsOneRequired("app", "url", "tab-title")
}

func openStore() (*store.Store, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.DatabasePath)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.ListTasks(cmd.Context())
	if err != nil {
		return err
	}

	switch taskFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(tasks)
	case "table":
		if len(tasks) == 0 {
			fmt.Println("No tasks yet. Create one with 'taskswitcher task add NAME'.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDONE\tNAME")
		printTaskTree(w, tasks, "", 0)
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", taskFormat)
	}
}

// printTaskTree prints the children of parentID depth-first. tasks is
// already sorted by order within each parent.
func printTaskTree(w *tabwriter.Writer, tasks []store.Task, parentID string, depth int) {
	for _, t := range tasks {
		parent := ""
		if t.ParentID != nil {
			parent = *t.ParentID
		}
		if parent != parentID {
			continue
		}
		done := ""
		if t.Completed {
			done = "✓"
		}
		fmt.Fprintf(w, "%s\t%s\t%s%s\n", t.ID, done, strings.Repeat("  ", depth), t.Name)
		printTaskTree(w, tasks, t.ID, depth+1)
	}
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	task, err := st.CreateTask(cmd.Context(), args[0], taskParent)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Created task %s (%s)\n", task.Name, task.ID)
	return nil
}

func runTaskRemove(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteTask(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Printf("✅ Deleted task %s\n", args[0])
	return nil
}

func runTaskDone(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	completed := !taskUndo
	task, err := st.UpdateTask(cmd.Context(), args[0], store.TaskUpdate{Completed: &completed})
	if err != nil {
		return err
	}

	fmt.Printf("✅ %s completed = %t\n", task.Name, task.Completed)
	return nil
}

func runTaskSwitch(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	task, err := st.GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	comps := platform.Build(cfg, nil, helper.ExecRunner{})
	defer comps.Close()

	dispatcher := activation.NewDispatcher(comps.Chain, nil)
	report, err := switcher.New(st, dispatcher, comps.Engine).SwitchTo(cmd.Context(), task.ID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, r := range report.Results {
		status := "✅"
		if !r.OK {
			status = "❌"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", status, r.Method, r.Target)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("Switched to %s: %d restored, %d failed\n", task.Name, report.Succeeded, report.Failed)
	return nil
}

func runTaskWindowList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.GetTask(cmd.Context(), args[0]); err != nil {
		return err
	}
	windows, err := st.GetTaskWindows(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if len(windows) == 0 {
		fmt.Println("No windows attached.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTARGET")
	for _, tw := range windows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", tw.ID, tw.Type, describeTaskWindow(tw))
	}
	return w.Flush()
}

func describeTaskWindow(tw store.TaskWindow) string {
	if tw.Type == store.WindowTypeApp {
		if tw.WindowTitle == "" {
			return tw.AppName
		}
		return tw.AppName + " / " + tw.WindowTitle
	}
	if tw.TabURL != "" {
		return tw.TabURL
	}
	return tw.TabTitle
}

func runTaskWindowAdd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	tw := store.TaskWindow{TaskID: args[0]}
	if windowApp != "" {
		tw.Type = store.WindowTypeApp
		tw.AppName = windowApp
		tw.WindowTitle = windowTitle
	} else {
		tw.Type = store.WindowTypeChromeTab
		tw.TabURL = windowURL
		tw.TabTitle = windowTabTitle
	}

	added, err := st.AddTaskWindow(cmd.Context(), tw)
	if err != nil {
		return err
	}

	fmt.Printf("✅ Attached %s (%s)\n", describeTaskWindow(added), added.ID)
	return nil
}

func runTaskWindowRemove(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.RemoveTaskWindow(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Printf("✅ Detached window %s\n", args[0])
	return nil
}
