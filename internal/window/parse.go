package window

import "strings"

const (
	// FieldSeparator splits app name from title in helper output
	FieldSeparator = "|||"

	// scriptingBridgeSeparator is how osascript prints a list of strings
	scriptingBridgeSeparator = ", "
)

// ParseHelperOutput parses list-windows helper output, one
// "appName|||windowTitle" per line. Lines without a separator are skipped.
// Empty fields are kept; the engine filters them.
func ParseHelperOutput(out string) []RawWindow {
	return parseRecords(strings.Split(strings.TrimSpace(out), "\n"))
}

// ParseScriptingBridgeOutput parses the osascript fallback output, a single
// line of comma separated "appName|||windowTitle" tokens.
func ParseScriptingBridgeOutput(out string) []RawWindow {
	return parseRecords(strings.Split(strings.TrimSpace(out), scriptingBridgeSeparator))
}

func parseRecords(records []string) []RawWindow {
	windows := make([]RawWindow, 0, len(records))
	for _, rec := range records {
		parts := strings.Split(rec, FieldSeparator)
		if len(parts) < 2 {
			continue
		}
		windows = append(windows, RawWindow{
			App:   strings.TrimSpace(parts[0]),
			Title: strings.TrimSpace(parts[1]),
		})
	}
	return windows
}
