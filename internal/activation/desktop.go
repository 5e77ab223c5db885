package activation

import (
	"context"
	"fmt"
	"strings"

	"github.com/bryanchriswhite/TaskSwitcher/internal/window"
)

// X11Windows lists and raises X11 client windows
type X11Windows interface {
	Clients() ([]window.X11Client, error)
	Activate(id uint32) error
}

// X11RaiseStrategy raises a window through _NET_ACTIVE_WINDOW. In app-only
// mode it ignores the title pattern and raises the first window of the app.
type X11RaiseStrategy struct {
	x       X11Windows
	appOnly bool
}

// NewX11RaiseStrategy creates an X11 strategy
func NewX11RaiseStrategy(x X11Windows, appOnly bool) *X11RaiseStrategy {
	return &X11RaiseStrategy{x: x, appOnly: appOnly}
}

// Name returns "x11-raise" or "x11-app"
func (s *X11RaiseStrategy) Name() string {
	if s.appOnly {
		return "x11-app"
	}
	return "x11-raise"
}

// Activate finds and raises the requested window
func (s *X11RaiseStrategy) Activate(ctx context.Context, req Request) error {
	if req.App == "" || (!s.appOnly && req.TitlePattern == "") {
		return ErrNotApplicable
	}

	clients, err := s.x.Clients()
	if err != nil {
		return err
	}

	var ids []uint32
	var titles []string
	for _, c := range clients {
		if strings.EqualFold(c.Class, req.App) {
			ids = append(ids, c.ID)
			titles = append(titles, c.Title)
		}
	}

	i := pick(titles, req.TitlePattern, s.appOnly)
	if i < 0 {
		return fmt.Errorf("%w: %s %q", ErrNoMatch, req.App, req.TitlePattern)
	}
	return s.x.Activate(ids[i])
}

// KWinWindows lists and activates windows through KWin
type KWinWindows interface {
	Windows(ctx context.Context) ([]window.KWinWindow, error)
	Activate(ctx context.Context, matchID string) error
}

// KWinRaiseStrategy activates a window through KWin's WindowsRunner, which
// also switches to the window's virtual desktop.
type KWinRaiseStrategy struct {
	k       KWinWindows
	appOnly bool
}

// NewKWinRaiseStrategy creates a KWin strategy
func NewKWinRaiseStrategy(k KWinWindows, appOnly bool) *KWinRaiseStrategy {
	return &KWinRaiseStrategy{k: k, appOnly: appOnly}
}

// Name returns "kwin-raise" or "kwin-app"
func (s *KWinRaiseStrategy) Name() string {
	if s.appOnly {
		return "kwin-app"
	}
	return "kwin-raise"
}

// Activate finds and activates the requested window
func (s *KWinRaiseStrategy) Activate(ctx context.Context, req Request) error {
	if req.App == "" || (!s.appOnly && req.TitlePattern == "") {
		return ErrNotApplicable
	}

	windows, err := s.k.Windows(ctx)
	if err != nil {
		return err
	}

	var ids []string
	var titles []string
	for _, w := range windows {
		if strings.EqualFold(w.Class, req.App) {
			ids = append(ids, w.MatchID)
			titles = append(titles, w.Title)
		}
	}

	i := pick(titles, req.TitlePattern, s.appOnly)
	if i < 0 {
		return fmt.Errorf("%w: %s %q", ErrNoMatch, req.App, req.TitlePattern)
	}
	return s.k.Activate(ctx, ids[i])
}

// pick selects among an app's windows: the first one in app-only mode,
// otherwise the first title match.
func pick(titles []string, pattern string, appOnly bool) int {
	if len(titles) == 0 {
		return -1
	}
	if appOnly {
		return 0
	}
	return MatchTitle(pattern, titles)
}
