package activation

import (
	"context"
	"strings"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/bryanchriswhite/TaskSwitcher/internal/relay"
)

// TabRelay is the part of the relay hub used for tab activation
type TabRelay interface {
	Send(t relay.MessageType, payload any) bool
	RequestTabs(ctx context.Context) []relay.Tab
}

// Dispatcher activates application windows and browser tabs. Its methods
// report success as a bool and never return errors; failures are logged.
type Dispatcher struct {
	chain *Chain
	tabs  TabRelay
}

// NewDispatcher creates a dispatcher. tabs may be nil when the relay is not
// running, in which case tab activation always fails.
func NewDispatcher(chain *Chain, tabs TabRelay) *Dispatcher {
	return &Dispatcher{chain: chain, tabs: tabs}
}

// Activate brings app to the front, raising the window matching
// titlePattern when one is given.
func (d *Dispatcher) Activate(ctx context.Context, app, titlePattern string) bool {
	log := logger.WithComponent("activation")

	if app == "" {
		log.Debug().Msg("Activate called without app name")
		return false
	}

	out, err := d.chain.Run(ctx, Request{App: app, TitlePattern: titlePattern})
	if err != nil {
		log.Warn().
			Err(err).
			Str("app", app).
			Str("title", titlePattern).
			Strs("skipped", out.Skipped).
			Msg("Failed to activate window")
		return false
	}

	log.Info().
		Str("app", app).
		Str("title", titlePattern).
		Str("strategy", out.Strategy).
		Int("failed_strategies", len(out.Failures)).
		Msg("Activated window")
	return true
}

// ActivateTab asks the peer to focus a tab. Success means the command was
// queued; the peer's acknowledgment is not awaited.
func (d *Dispatcher) ActivateTab(tabID, windowID int) bool {
	if d.tabs == nil {
		return false
	}
	ok := d.tabs.Send(relay.TypeActivateTab, relay.ActivateTabPayload{TabID: tabID, WindowID: windowID})
	logger.WithComponent("activation").Debug().
		Int("tab_id", tabID).
		Int("window_id", windowID).
		Bool("sent", ok).
		Msg("Tab activation requested")
	return ok
}

// ActivateTabByURL activates the first tab whose URL contains pattern
func (d *Dispatcher) ActivateTabByURL(ctx context.Context, pattern string) bool {
	return d.activateTabWhere(ctx, "url", pattern, func(t relay.Tab) string { return t.URL })
}

// ActivateTabByTitle activates the first tab whose title contains pattern
func (d *Dispatcher) ActivateTabByTitle(ctx context.Context, pattern string) bool {
	return d.activateTabWhere(ctx, "title", pattern, func(t relay.Tab) string { return t.Title })
}

func (d *Dispatcher) activateTabWhere(ctx context.Context, field, pattern string, value func(relay.Tab) string) bool {
	log := logger.WithComponent("activation")

	if d.tabs == nil || pattern == "" {
		return false
	}

	for _, tab := range d.tabs.RequestTabs(ctx) {
		if strings.Contains(value(tab), pattern) {
			return d.ActivateTab(tab.TabID, tab.WindowID)
		}
	}

	log.Info().Str(field, pattern).Msg("No tab matched")
	return false
}
