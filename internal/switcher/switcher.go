// Package switcher restores the windows and tabs attached to a task.
package switcher

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/bryanchriswhite/TaskSwitcher/internal/store"
	"github.com/bryanchriswhite/TaskSwitcher/internal/window"
)

// TaskWindows loads the windows attached to a task
type TaskWindows interface {
	GetTaskWindows(ctx context.Context, taskID string) ([]store.TaskWindow, error)
}

// Activator brings windows and tabs to the front
type Activator interface {
	Activate(ctx context.Context, app, titlePattern string) bool
	ActivateTabByURL(ctx context.Context, pattern string) bool
	ActivateTabByTitle(ctx context.Context, pattern string) bool
}

// WindowCache lets the switcher drop windows that turned out to be gone
type WindowCache interface {
	CacheOnly(k window.Key) bool
	Forget(k window.Key) bool
}

// Result is the outcome of restoring one task window
type Result struct {
	WindowID string           `json:"window_id"`
	Type     store.WindowType `json:"type"`
	Target   string           `json:"target"`
	Method   string           `json:"method"`
	OK       bool             `json:"ok"`
}

// Report summarizes a task switch
type Report struct {
	TaskID    string        `json:"task_id"`
	Results   []Result      `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Switcher restores tasks
type Switcher struct {
	windows   TaskWindows
	activator Activator
	cache     WindowCache
}

// New creates a switcher. cache may be nil.
func New(windows TaskWindows, activator Activator, cache WindowCache) *Switcher {
	return &Switcher{windows: windows, activator: activator, cache: cache}
}

// SwitchTo activates every window attached to taskID in order. Each entry is
// attempted independently; a failed entry does not stop the rest. The error
// is only set when the task's windows cannot be loaded.
func (s *Switcher) SwitchTo(ctx context.Context, taskID string) (Report, error) {
	log := logger.WithComponent("switcher")
	start := time.Now()

	entries, err := s.windows.GetTaskWindows(ctx, taskID)
	if err != nil {
		return Report{}, fmt.Errorf("load task windows: %w", err)
	}

	report := Report{TaskID: taskID, Results: make([]Result, 0, len(entries))}
	for _, tw := range entries {
		r := s.restore(ctx, tw)
		if r.OK {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, r)
	}
	report.Duration = time.Since(start)

	log.Info().
		Str("task_id", taskID).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Switched to task")

	return report, nil
}

func (s *Switcher) restore(ctx context.Context, tw store.TaskWindow) Result {
	r := Result{WindowID: tw.ID, Type: tw.Type}

	switch tw.Type {
	case store.WindowTypeApp:
		r.Method = "app"
		r.Target = tw.AppName
		if tw.WindowTitle != "" {
			r.Target += " / " + tw.WindowTitle
		}
		r.OK = s.activator.Activate(ctx, tw.AppName, tw.WindowTitle)
		if !r.OK {
			s.forgetStale(tw)
		}

	case store.WindowTypeChromeTab:
		switch {
		case tw.TabURL != "":
			r.Method = "tab-url"
			r.Target = tw.TabURL
			r.OK = s.activator.ActivateTabByURL(ctx, tw.TabURL)
		case tw.TabTitle != "":
			r.Method = "tab-title"
			r.Target = tw.TabTitle
			r.OK = s.activator.ActivateTabByTitle(ctx, tw.TabTitle)
		default:
			r.Method = "none"
		}

	default:
		r.Method = "none"
		logger.WithComponent("switcher").Warn().Str("type", string(tw.Type)).Msg("Unknown task window type")
	}

	return r
}

// forgetStale drops a window that only the cache still knew about once
// activating it has failed, so it stops being offered.
func (s *Switcher) forgetStale(tw store.TaskWindow) {
	if s.cache == nil || tw.WindowTitle == "" {
		return
	}
	k := window.Key{App: tw.AppName, Title: tw.WindowTitle}
	if s.cache.CacheOnly(k) && s.cache.Forget(k) {
		logger.WithComponent("switcher").Info().
			Str("app", k.App).
			Str("title", k.Title).
			Msg("Dropped stale cached window after failed activation")
	}
}
