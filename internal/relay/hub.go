// Package relay connects the host to the browser extension peer.
//
// A Hub owns the single peer connection, the cached tab snapshot and the
// pending tab request. All of that state is mutated by one goroutine (Run)
// that consumes events posted by the transport and by callers, so no
// additional locking is needed around it.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"github.com/bryanchriswhite/TaskSwitcher/internal/metrics"
)

// DefaultTabRequestTimeout bounds how long RequestTabs waits for the peer
const DefaultTabRequestTimeout = 2 * time.Second

// Peer is one live connection to the browser extension.
type Peer interface {
	// Enqueue queues raw for delivery to the peer. It returns false when the
	// peer can no longer accept messages.
	Enqueue(raw []byte) bool
	Close() error
	RemoteAddr() string
}

type timer interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Options configures a Hub
type Options struct {
	TabRequestTimeout time.Duration
	Metrics           *metrics.Metrics
}

// Status is a point-in-time view of the relay connection
type Status struct {
	Connected      bool       `json:"connected"`
	RemoteAddr     string     `json:"remote_addr,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	TabsCached     int        `json:"tabs_cached"`
	RequestPending bool       `json:"request_pending"`
	MessagesIn     uint64     `json:"messages_in"`
	MessagesOut    uint64     `json:"messages_out"`
}

// Hub is the peer connection manager and tab request correlator
type Hub struct {
	events   chan event
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	timeout   time.Duration
	afterFunc func(time.Duration, func()) timer
	now       func() time.Time
	metrics   *metrics.Metrics

	// Owned by the loop goroutine
	peer          Peer
	peerSince     time.Time
	tabs          []Tab
	pending       *pendingRequest
	nextRequestID uint64
	messagesIn    uint64
	messagesOut   uint64
}

// NewHub creates a hub. Call Run to start processing events.
func NewHub(opts Options) *Hub {
	timeout := opts.TabRequestTimeout
	if timeout <= 0 {
		timeout = DefaultTabRequestTimeout
	}

	return &Hub{
		events:    make(chan event, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		timeout:   timeout,
		afterFunc: realAfterFunc,
		now:       time.Now,
		metrics:   opts.Metrics,
		tabs:      []Tab{},
	}
}

type event interface{}

type connectEvent struct {
	peer Peer
}

type messageEvent struct {
	peer Peer
	raw  []byte
}

type disconnectEvent struct {
	peer Peer
}

type sendEvent struct {
	msgType MessageType
	payload any
	reply   chan bool
}

type tabsRequestEvent struct {
	reply chan []Tab
}

type timeoutEvent struct {
	id uint64
}

type snapshotEvent struct {
	reply chan []Tab
}

type statusEvent struct {
	reply chan Status
}

// Run processes events until ctx is done or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	log := logger.WithComponent("relay")
	defer close(h.done)
	defer h.shutdown()

	log.Debug().Dur("tab_request_timeout", h.timeout).Msg("Relay hub started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.quit:
			return
		case ev := <-h.events:
			h.handle(ev)
		}
	}
}

// Stop ends the event loop, closing the current peer.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

// Done is closed once the event loop has exited
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// post hands ev to the loop. It returns false once the loop has exited.
func (h *Hub) post(ev event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// Connect makes p the current peer. A previous peer is closed silently.
func (h *Hub) Connect(p Peer) {
	h.post(connectEvent{peer: p})
}

// Deliver hands a raw message received from p to the loop.
func (h *Hub) Deliver(p Peer, raw []byte) {
	h.post(messageEvent{peer: p, raw: raw})
}

// Disconnect reports that p's connection has gone away.
func (h *Hub) Disconnect(p Peer) {
	h.post(disconnectEvent{peer: p})
}

// Send enqueues a message for the current peer. It returns false and performs
// no I/O when no peer is connected.
func (h *Hub) Send(t MessageType, payload any) bool {
	reply := make(chan bool, 1)
	if !h.post(sendEvent{msgType: t, payload: payload, reply: reply}) {
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-h.done:
		return false
	}
}

// Connected reports whether a peer is currently attached
func (h *Hub) Connected() bool {
	return h.Status().Connected
}

// Tabs returns the cached tab snapshot without contacting the peer.
func (h *Hub) Tabs() []Tab {
	reply := make(chan []Tab, 1)
	if !h.post(snapshotEvent{reply: reply}) {
		return []Tab{}
	}
	select {
	case tabs := <-reply:
		return tabs
	case <-h.done:
		return []Tab{}
	}
}

// Status returns connection details for diagnostics
func (h *Hub) Status() Status {
	reply := make(chan Status, 1)
	if !h.post(statusEvent{reply: reply}) {
		return Status{}
	}
	select {
	case st := <-reply:
		return st
	case <-h.done:
		return Status{}
	}
}

func (h *Hub) handle(ev event) {
	switch ev := ev.(type) {
	case connectEvent:
		h.handleConnect(ev.peer)
	case messageEvent:
		h.handleMessage(ev.peer, ev.raw)
	case disconnectEvent:
		h.handleDisconnect(ev.peer)
	case sendEvent:
		ev.reply <- h.send(ev.msgType, ev.payload)
	case tabsRequestEvent:
		h.handleTabsRequest(ev.reply)
	case timeoutEvent:
		h.handleTimeout(ev.id)
	case snapshotEvent:
		ev.reply <- h.snapshot()
	case statusEvent:
		ev.reply <- h.status()
	}
}

func (h *Hub) handleConnect(p Peer) {
	log := logger.WithComponent("relay")

	if h.peer != nil && h.peer != p {
		log.Info().
			Str("previous", h.peer.RemoteAddr()).
			Str("remote", p.RemoteAddr()).
			Msg("Browser extension reconnected, replacing previous connection")
		if err := h.peer.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close previous peer")
		}
	} else {
		log.Info().Str("remote", p.RemoteAddr()).Msg("Browser extension connected")
	}

	h.peer = p
	h.peerSince = h.now()
	h.tabs = []Tab{}
	h.metrics.SetRelayConnected(true)
	h.reissuePending()
}

func (h *Hub) handleDisconnect(p Peer) {
	log := logger.WithComponent("relay")

	if p != h.peer {
		log.Debug().Str("remote", p.RemoteAddr()).Msg("Ignoring disconnect of replaced peer")
		return
	}

	log.Info().Str("remote", p.RemoteAddr()).Msg("Browser extension disconnected")

	// The pending request is left to its timer so its caller still gets an
	// answer (the now empty snapshot).
	h.peer = nil
	h.tabs = []Tab{}
	h.metrics.SetRelayConnected(false)
}

func (h *Hub) handleMessage(p Peer, raw []byte) {
	log := logger.WithComponent("relay")

	if p != h.peer {
		log.Debug().Str("remote", p.RemoteAddr()).Msg("Dropping message from replaced peer")
		return
	}

	env, err := Decode(raw)
	if err != nil {
		if errors.Is(err, ErrUnknownType) || errors.Is(err, ErrMalformed) {
			log.Warn().Err(err).Int("bytes", len(raw)).Msg("Ignoring undecodable message from extension")
		}
		return
	}

	h.messagesIn++
	h.metrics.RelayMessage("in", string(env.Type))

	switch env.Type {
	case TypeTabsList:
		tabs, err := DecodeTabs(env)
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring tabs-list with bad payload")
			return
		}
		h.handleTabsList(tabs)

	case TypeTabActivated:
		ack, err := DecodeActivation(env)
		if err != nil {
			log.Debug().Err(err).Msg("tab-activated without tab reference")
			return
		}
		log.Info().Int("tab_id", ack.TabID).Int("window_id", ack.WindowID).Msg("Tab activated")

	case TypeConnectionStatus:
		st, err := DecodeConnectionStatus(env)
		if err != nil {
			log.Debug().Err(err).Msg("Bad connection-status payload")
			return
		}
		log.Info().Bool("connected", st.Connected).Msg("Extension connection status")

	default:
		log.Debug().Str("type", string(env.Type)).Msg("Ignoring host-to-peer message sent by peer")
	}
}

func (h *Hub) send(t MessageType, payload any) bool {
	log := logger.WithComponent("relay")

	if h.peer == nil {
		log.Debug().Str("type", string(t)).Msg("No extension connected, not sending")
		return false
	}

	raw, err := Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("Failed to encode message")
		return false
	}

	if !h.peer.Enqueue(raw) {
		log.Warn().Str("type", string(t)).Msg("Extension outbound queue unavailable")
		return false
	}

	h.messagesOut++
	h.metrics.RelayMessage("out", string(t))
	return true
}

func (h *Hub) snapshot() []Tab {
	tabs := make([]Tab, len(h.tabs))
	copy(tabs, h.tabs)
	return tabs
}

func (h *Hub) status() Status {
	st := Status{
		Connected:      h.peer != nil,
		TabsCached:     len(h.tabs),
		RequestPending: h.pending != nil,
		MessagesIn:     h.messagesIn,
		MessagesOut:    h.messagesOut,
	}
	if h.peer != nil {
		since := h.peerSince
		st.RemoteAddr = h.peer.RemoteAddr()
		st.ConnectedSince = &since
	}
	return st
}

// shutdown runs on the loop goroutine after the loop exits.
func (h *Hub) shutdown() {
	if h.pending != nil {
		h.pending.timer.Stop()
		h.resolvePending()
	}
	if h.peer != nil {
		h.peer.Close()
		h.peer = nil
	}
	h.tabs = []Tab{}
	h.metrics.SetRelayConnected(false)
	logger.WithComponent("relay").Debug().Msg("Relay hub stopped")
}
