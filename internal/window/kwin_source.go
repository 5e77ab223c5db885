package window

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/godbus/dbus/v5"
)

// KWin D-Bus constants
const (
	kwinService       = "org.kde.KWin"
	windowsRunnerPath = "/WindowsRunner"
	krunnerInterface  = "org.kde.krunner1"
)

// KWinWindow is a window reported by KWin's WindowsRunner
type KWinWindow struct {
	MatchID string
	Class   string
	Title   string
}

// KWinSource lists windows through the KRunner WindowsRunner plugin, which
// covers native Wayland clients the X11 source cannot see.
type KWinSource struct {
	conn *dbus.Conn
}

// NewKWinSource connects to the session bus and checks that KWin is running
func NewKWinSource() (*KWinSource, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", errors.Join(ErrSourceUnavailable, err))
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}
	if err := requireKWin(names); err != nil {
		conn.Close()
		return nil, err
	}

	logger.WithComponent("window-source").Info().Msg("Connected to KWin D-Bus service")
	return &KWinSource{conn: conn}, nil
}

// requireKWin checks the bus names for KWin's service
func requireKWin(names []string) error {
	if !slices.Contains(names, kwinService) {
		return fmt.Errorf("KWin not found on D-Bus: %w", ErrSourceUnavailable)
	}
	return nil
}

// Close closes the D-Bus connection
func (s *KWinSource) Close() error {
	return s.conn.Close()
}

// Name returns "kwin"
func (s *KWinSource) Name() string {
	return "kwin"
}

// ListWindows returns the windows KWin knows about
func (s *KWinSource) ListWindows(ctx context.Context) ([]RawWindow, error) {
	matches, err := s.Windows(ctx)
	if err != nil {
		return nil, err
	}

	windows := make([]RawWindow, 0, len(matches))
	for _, m := range matches {
		windows = append(windows, RawWindow{App: m.Class, Title: m.Title})
	}
	return windows, nil
}

// Windows runs an empty KRunner query, which WindowsRunner answers with every
// window.
func (s *KWinSource) Windows(ctx context.Context) ([]KWinWindow, error) {
	obj := s.conn.Object(kwinService, windowsRunnerPath)

	// a(sssida{sv}): id, text, iconName, type, relevance, properties
	var rawMatches [][]interface{}
	if err := obj.CallWithContext(ctx, krunnerInterface+".Match", 0, "").Store(&rawMatches); err != nil {
		return nil, fmt.Errorf("failed to call WindowsRunner Match: %w", err)
	}

	windows := make([]KWinWindow, 0, len(rawMatches))
	for _, raw := range rawMatches {
		if w, ok := parseRunnerMatch(raw); ok {
			windows = append(windows, w)
		}
	}
	return windows, nil
}

// Activate runs the default action of a WindowsRunner match, which switches
// to the window's desktop and focuses it.
func (s *KWinSource) Activate(ctx context.Context, matchID string) error {
	obj := s.conn.Object(kwinService, windowsRunnerPath)
	if call := obj.CallWithContext(ctx, krunnerInterface+".Run", 0, matchID, ""); call.Err != nil {
		return fmt.Errorf("failed to run WindowsRunner match %s: %w", matchID, call.Err)
	}
	return nil
}

func parseRunnerMatch(raw []interface{}) (KWinWindow, bool) {
	if len(raw) < 3 {
		return KWinWindow{}, false
	}
	id, ok := raw[0].(string)
	if !ok {
		return KWinWindow{}, false
	}
	text, _ := raw[1].(string)
	iconName, _ := raw[2].(string)

	w := KWinWindow{MatchID: id, Title: text, Class: iconName}
	if w.Class == "" {
		w.Class = classFromTitle(text)
	}
	return w, w.Title != "" || w.Class != ""
}

// classFromTitle guesses the application from a "Document - Application"
// title.
func classFromTitle(title string) string {
	for _, sep := range []string{" — ", " - "} {
		if idx := strings.LastIndex(title, sep); idx > 0 {
			candidate := strings.TrimSpace(title[idx+len(sep):])
			if candidate != "" && len(candidate) <= 30 {
				return strings.ToLower(candidate)
			}
		}
	}
	return ""
}
