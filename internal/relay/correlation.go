package relay

import (
	"context"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
)

// pendingRequest is the single in-flight get-tabs exchange. Callers that ask
// for tabs while it is outstanding join its waiters instead of issuing a
// second request.
type pendingRequest struct {
	id      uint64
	peer    Peer
	timer   timer
	started time.Time
	waiters []chan []Tab
}

// RequestTabs asks the peer for its current tabs and waits for the answer or
// the request timeout, whichever comes first. It never fails: without a peer,
// on timeout, or when ctx is cancelled it returns the cached snapshot, which
// may be stale or empty.
func (h *Hub) RequestTabs(ctx context.Context) []Tab {
	reply := make(chan []Tab, 1)
	if !h.post(tabsRequestEvent{reply: reply}) {
		return []Tab{}
	}

	select {
	case tabs := <-reply:
		return tabs
	case <-ctx.Done():
		return h.Tabs()
	case <-h.done:
		return []Tab{}
	}
}

func (h *Hub) handleTabsRequest(reply chan []Tab) {
	log := logger.WithComponent("relay")

	if h.pending != nil {
		h.pending.waiters = append(h.pending.waiters, reply)
		h.metrics.TabRequest("coalesced")

		h.reissuePending()
		log.Debug().Uint64("request_id", h.pending.id).Int("waiters", len(h.pending.waiters)).Msg("Joined in-flight tab request")
		return
	}

	if h.peer == nil {
		h.metrics.TabRequest("offline")
		reply <- h.snapshot()
		return
	}

	if !h.send(TypeGetTabs, nil) {
		h.metrics.TabRequest("offline")
		reply <- h.snapshot()
		return
	}

	h.nextRequestID++
	id := h.nextRequestID
	h.pending = &pendingRequest{
		id:      id,
		peer:    h.peer,
		started: h.now(),
		waiters: []chan []Tab{reply},
	}
	h.pending.timer = h.afterFunc(h.timeout, func() {
		h.post(timeoutEvent{id: id})
	})

	log.Debug().Uint64("request_id", id).Msg("Requested tabs from extension")
}

// reissuePending sends the outstanding get-tabs to the current peer when the
// peer that received it has been replaced. The original deadline stands.
func (h *Hub) reissuePending() {
	if h.pending == nil || h.peer == nil || h.pending.peer == h.peer {
		return
	}
	if h.send(TypeGetTabs, nil) {
		h.pending.peer = h.peer
		logger.WithComponent("relay").Debug().
			Uint64("request_id", h.pending.id).
			Str("remote", h.peer.RemoteAddr()).
			Msg("Re-sent pending tab request to new peer")
	}
}

func (h *Hub) handleTabsList(tabs []Tab) {
	log := logger.WithComponent("relay")

	h.tabs = tabs

	if h.pending == nil {
		log.Debug().Int("tabs", len(tabs)).Msg("Unsolicited or late tabs-list, snapshot updated")
		return
	}

	h.pending.timer.Stop()
	log.Debug().
		Uint64("request_id", h.pending.id).
		Int("tabs", len(tabs)).
		Dur("elapsed", h.now().Sub(h.pending.started)).
		Msg("Tab request answered")
	h.metrics.TabRequest("response")
	h.resolvePending()
}

func (h *Hub) handleTimeout(id uint64) {
	if h.pending == nil || h.pending.id != id {
		// Already resolved by a response; the late timer is a no-op.
		return
	}

	logger.WithComponent("relay").Warn().
		Uint64("request_id", id).
		Dur("timeout", h.timeout).
		Int("cached_tabs", len(h.tabs)).
		Msg("Extension did not answer tab request, using cached tabs")
	h.metrics.TabRequest("timeout")
	h.resolvePending()
}

// resolvePending answers every waiter with the current snapshot and clears
// the slot.
func (h *Hub) resolvePending() {
	p := h.pending
	h.pending = nil
	for _, w := range p.waiters {
		w <- h.snapshot()
	}
}
