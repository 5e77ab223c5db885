package main

import "github.com/bryanchriswhite/TaskSwitcher/cmd/taskswitcher/commands"

func main() {
	commands.Execute()
}
