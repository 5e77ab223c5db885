package window

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/TaskSwitcher/internal/helper"
)

// listWindowsScript asks System Events for every window of every visible
// process. It only sees the current Space and misses windows of apps that do
// not expose a native accessibility tree.
const listWindowsScript = `set windowList to {}
tell application "System Events"
	set allProcesses to every process whose visible is true
	repeat with proc in allProcesses
		set appName to displayed name of proc
		try
			repeat with win in (every window of proc)
				try
					set winTitle to name of win
					if winTitle is not "" then
						set end of windowList to appName & "|||" & winTitle
					end if
				end try
			end repeat
		end try
	end repeat
end tell
return windowList`

// HelperSource runs the list-windows helper, which enables manual
// accessibility on each process before walking its windows.
type HelperSource struct {
	runner helper.Runner
	argv   []string
}

// NewHelperSource creates a source for the helper command argv
func NewHelperSource(runner helper.Runner, argv []string) *HelperSource {
	return &HelperSource{runner: runner, argv: argv}
}

// Name returns "helper"
func (s *HelperSource) Name() string {
	return "helper"
}

// ListWindows runs the helper and parses its output
func (s *HelperSource) ListWindows(ctx context.Context) ([]RawWindow, error) {
	if len(s.argv) == 0 {
		return nil, fmt.Errorf("list-windows helper: %w", helper.ErrNotConfigured)
	}
	out, err := s.runner.Run(ctx, s.argv)
	if err != nil {
		return nil, fmt.Errorf("list-windows helper: %w", err)
	}
	return ParseHelperOutput(string(out)), nil
}

// ScriptingBridgeSource enumerates windows with an AppleScript run through
// osascript.
type ScriptingBridgeSource struct {
	runner    helper.Runner
	osascript []string
}

// NewScriptingBridgeSource creates a source that runs the osascript command
// argv (normally just "osascript").
func NewScriptingBridgeSource(runner helper.Runner, osascript []string) *ScriptingBridgeSource {
	if len(osascript) == 0 {
		osascript = []string{"osascript"}
	}
	return &ScriptingBridgeSource{runner: runner, osascript: osascript}
}

// Name returns "scripting-bridge"
func (s *ScriptingBridgeSource) Name() string {
	return "scripting-bridge"
}

// ListWindows runs the System Events script
func (s *ScriptingBridgeSource) ListWindows(ctx context.Context) ([]RawWindow, error) {
	out, err := s.runner.Run(ctx, helper.WithArgs(s.osascript, "-e", listWindowsScript))
	if err != nil {
		return nil, fmt.Errorf("osascript window list: %w", err)
	}
	return ParseScriptingBridgeOutput(string(out)), nil
}
