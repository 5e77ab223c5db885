package activation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/helper"
	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
)

// DefaultSettleDelay is the pause before re-asserting front-most status after
// a raise, giving a pending desktop switch time to finish.
const DefaultSettleDelay = 100 * time.Millisecond

// FrontmostStrategy brings an application to the front with
// `tell application X to activate`. It ignores the title pattern.
type FrontmostStrategy struct {
	runner    helper.Runner
	osascript []string
	timeout   time.Duration
}

// NewFrontmostStrategy creates the bring-to-front strategy. osascript is the
// command prefix, normally just "osascript".
func NewFrontmostStrategy(runner helper.Runner, osascript []string, timeout time.Duration) *FrontmostStrategy {
	if len(osascript) == 0 {
		osascript = []string{"osascript"}
	}
	return &FrontmostStrategy{runner: runner, osascript: osascript, timeout: timeout}
}

// Name returns "frontmost"
func (s *FrontmostStrategy) Name() string {
	return "frontmost"
}

// Activate runs the AppleScript activate command for req.App
func (s *FrontmostStrategy) Activate(ctx context.Context, req Request) error {
	if req.App == "" {
		return ErrNotApplicable
	}
	script := fmt.Sprintf("tell application %s to activate", appleScriptString(req.App))
	if _, err := helper.RunWithTimeout(ctx, s.runner, s.timeout, helper.WithArgs(s.osascript, "-e", script)); err != nil {
		return fmt.Errorf("failed to activate %s: %w", req.App, err)
	}
	return nil
}

// appleScriptString quotes s as an AppleScript string literal
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// RaiseHelperStrategy runs the raise-window helper with the app name and
// title pattern appended to its argv. The helper enables manual
// accessibility, raises the first window whose title matches and makes it the
// main and focused window.
//
// After a successful raise it waits settle and runs reassert, so a window on
// another desktop ends up in front once the desktop switch has finished.
type RaiseHelperStrategy struct {
	runner   helper.Runner
	argv     []string
	timeout  time.Duration
	settle   time.Duration
	reassert Strategy
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRaiseHelperStrategy creates the helper strategy. reassert may be nil.
func NewRaiseHelperStrategy(runner helper.Runner, argv []string, timeout, settle time.Duration, reassert Strategy) *RaiseHelperStrategy {
	return &RaiseHelperStrategy{
		runner:   runner,
		argv:     argv,
		timeout:  timeout,
		settle:   settle,
		reassert: reassert,
		sleep:    sleepContext,
	}
}

// Name returns "raise-helper"
func (s *RaiseHelperStrategy) Name() string {
	return "raise-helper"
}

// Activate raises the window matching req.TitlePattern
func (s *RaiseHelperStrategy) Activate(ctx context.Context, req Request) error {
	if req.TitlePattern == "" || req.App == "" {
		return ErrNotApplicable
	}
	if len(s.argv) == 0 {
		return fmt.Errorf("raise-window helper: %w", helper.ErrNotConfigured)
	}

	_, err := helper.RunWithTimeout(ctx, s.runner, s.timeout, helper.WithArgs(s.argv, req.App, req.TitlePattern))
	if err != nil {
		var exitErr *helper.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s", ErrNoMatch, exitErr)
		}
		return fmt.Errorf("raise-window helper: %w", err)
	}

	if s.reassert == nil {
		return nil
	}
	if err := s.sleep(ctx, s.settle); err != nil {
		// Already raised; only the re-assert is skipped.
		return nil
	}
	if err := s.reassert.Activate(ctx, Request{App: req.App}); err != nil {
		logger.WithComponent("activation").Warn().
			Err(err).
			Str("app", req.App).
			Msg("Window raised but re-asserting front-most failed")
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
