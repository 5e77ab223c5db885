package commands

import (
	"bytes"
	"testing"
	"text/tabwriter"

	"github.com/bryanchriswhite/TaskSwitcher/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestPrintTaskTree(t *testing.T) {
	parent := "a"
	tasks := []store.Task{
		{ID: "a", Name: "Report"},
		{ID: "b", Name: "Numbers", ParentID: &parent, Completed: true},
		{ID: "c", Name: "Review"},
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 1, ' ', 0)
	printTaskTree(w, tasks, "", 0)
	w.Flush()

	assert.Equal(t, "a   Report\nb ✓   Numbers\nc   Review\n", buf.String())
}

func TestDescribeTaskWindow(t *testing.T) {
	assert.Equal(t, "Code / project-a", describeTaskWindow(store.TaskWindow{Type: store.WindowTypeApp, AppName: "Code", WindowTitle: "project-a"}))
	assert.Equal(t, "Finder", describeTaskWindow(store.TaskWindow{Type: store.WindowTypeApp, AppName: "Finder"}))
	assert.Equal(t, "github.com", describeTaskWindow(store.TaskWindow{Type: store.WindowTypeChromeTab, TabURL: "github.com", TabTitle: "GitHub"}))
	assert.Equal(t, "GitHub", describeTaskWindow(store.TaskWindow{Type: store.WindowTypeChromeTab, TabTitle: "GitHub"}))
}
