package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	name string

	mu       sync.Mutex
	sent     []Envelope
	closed   bool
	rejectIO bool
}

func newFakePeer(name string) *fakePeer {
	return &fakePeer{name: name}
}

func (p *fakePeer) Enqueue(raw []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.rejectIO {
		return false
	}
	env, err := Decode(raw)
	if err != nil {
		panic(err)
	}
	p.sent = append(p.sent, env)
	return true
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) RemoteAddr() string { return p.name }

func (p *fakePeer) sentTypes() []MessageType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]MessageType, 0, len(p.sent))
	for _, env := range p.sent {
		types = append(types, env.Type)
	}
	return types
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// manualTimers replaces time.AfterFunc so tests decide when timers fire.
type manualTimers struct {
	timers []*manualTimer
}

type manualTimer struct {
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

// fire runs the callback even if the timer was stopped, modelling a timer
// that had already fired when Stop was called.
func (t *manualTimer) fire() { t.fn() }

func (m *manualTimers) afterFunc(_ time.Duration, fn func()) timer {
	t := &manualTimer{fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualTimers) last() *manualTimer {
	return m.timers[len(m.timers)-1]
}

// newSyncHub returns a hub whose events are handled by the test itself.
func newSyncHub() (*Hub, *manualTimers) {
	h := NewHub(Options{})
	timers := &manualTimers{}
	h.afterFunc = timers.afterFunc
	return h, timers
}

// drain handles every queued event on the calling goroutine.
func drain(h *Hub) {
	for {
		select {
		case ev := <-h.events:
			h.handle(ev)
		default:
			return
		}
	}
}

func tabsListMessage(t *testing.T, tabs ...Tab) []byte {
	t.Helper()
	if tabs == nil {
		tabs = []Tab{}
	}
	raw, err := Encode(TypeTabsList, TabsListPayload{Tabs: tabs})
	require.NoError(t, err)
	return raw
}

func requestTabsSync(h *Hub) chan []Tab {
	reply := make(chan []Tab, 1)
	h.handle(tabsRequestEvent{reply: reply})
	return reply
}

func receive(t *testing.T, ch chan []Tab) []Tab {
	t.Helper()
	select {
	case tabs := <-ch:
		return tabs
	default:
		t.Fatal("request not resolved")
		return nil
	}
}

func assertPending(t *testing.T, ch chan []Tab) {
	t.Helper()
	select {
	case tabs := <-ch:
		t.Fatalf("request resolved early with %v", tabs)
	default:
	}
}

var (
	tabGitHub = Tab{TabID: 1, WindowID: 100, URL: "https://github.com/org/repo", Title: "repo"}
	tabDocs   = Tab{TabID: 2, WindowID: 100, URL: "https://go.dev/doc", Title: "Documentation"}
)

func TestRequestTabsWithoutPeerReturnsSnapshotImmediately(t *testing.T) {
	h, timers := newSyncHub()

	reply := requestTabsSync(h)

	assert.Empty(t, receive(t, reply))
	assert.Empty(t, timers.timers, "no timer without a peer")
	assert.Nil(t, h.pending)
}

func TestRequestTabsResolvedByResponse(t *testing.T) {
	h, timers := newSyncHub()
	p := newFakePeer("p1")
	h.handle(connectEvent{peer: p})

	reply := requestTabsSync(h)
	assert.Equal(t, []MessageType{TypeGetTabs}, p.sentTypes())
	assertPending(t, reply)

	h.handle(messageEvent{peer: p, raw: tabsListMessage(t, tabGitHub, tabDocs)})

	assert.Equal(t, []Tab{tabGitHub, tabDocs}, receive(t, reply))
	assert.Nil(t, h.pending)
	assert.True(t, timers.last().stopped)
	assert.Equal(t, []Tab{tabGitHub, tabDocs}, h.snapshot())
}

func TestRequestTabsResolvesExactlyOnce(t *testing.T) {
	orderings := []struct {
		name  string
		steps []string
	}{
		{"response then timer", []string{"response", "timer"}},
		{"timer then response", []string{"timer", "response"}},
		{"response twice then timer", []string{"response", "response", "timer"}},
		{"timer twice", []string{"timer", "timer"}},
	}

	for _, tt := range orderings {
		t.Run(tt.name, func(t *testing.T) {
			h, timers := newSyncHub()
			p := newFakePeer("p1")
			h.handle(connectEvent{peer: p})
			h.handle(messageEvent{peer: p, raw: tabsListMessage(t, tabDocs)})

			reply := requestTabsSync(h)
			tm := timers.last()

			resolutions := 0
			var first []Tab
			for _, step := range tt.steps {
				switch step {
				case "response":
					h.handle(messageEvent{peer: p, raw: tabsListMessage(t, tabGitHub)})
				case "timer":
					tm.fire()
					drain(h)
				}
				select {
				case tabs := <-reply:
					resolutions++
					if first == nil {
						first = tabs
					}
				default:
				}
			}

			assert.Equal(t, 1, resolutions)
			assert.Nil(t, h.pending)
			if tt.steps[0] == "response" {
				assert.Equal(t, []Tab{tabGitHub}, first)
			} else {
				assert.Equal(t, []Tab{tabDocs}, first, "timeout returns the cached snapshot")
			}
		})
	}
}

func TestStaleTimerDoesNotResolveNewerRequest(t *testing.T) {
	h, timers := newSyncHub()
	p := newFakePeer("p1")
	h.handle(connectEvent{peer: p})

	first := requestTabsSync(h)
	firstTimer := timers.last()
	h.handle(messageEvent{peer: p, raw: tabsListMessage(t, tabGitHub)})
	receive(t, first)

	second := requestTabsSync(h)
	require.NotNil(t, h.pending)

	// The first request's timer fires late, after the slot was reused.
	firstTimer.fire()
	drain(h)

	assertPending(t, second)
	require.NotNil(t, h.pending)

	timers.last().fire()
	drain(h)
	assert.Equal(t, []Tab{tabGitHub}, receive(t, second))
}

func TestConcurrentRequestsAreCoalesced(t *testing.T) {
	h, timers := newSyncHub()
	p := newFakePeer("p1")
	h.handle(connectEvent{peer: p})

	a := requestTabsSync(h)
	b := requestTabsSync(h)

	assert.Len(t, timers.timers, 1, "only one timer for coalesced requests")
	assert.Equal(t, []MessageType{TypeGetTabs}, p.sentTypes(), "only one get-tabs sent")

	h.handle(messageEvent{peer: p, raw: tabsListMessage(t, tabDocs)})

	assert.Equal(t, []Tab{tabDocs}, receive(t, a))
	assert.Equal(t, []Tab{tabDocs}, receive(t, b))
}

func TestLateResponseIsDeadLettered(t *testing.T) {
	h, timers := newSyncHub()
	p := newFakePeer("p1")
	h.handle(connectEvent{peer: p})

	reply := requestTabsSync(h)
	timers.last().fire()
	drain(h)
	assert.Empty(t, receive(t, reply))

	h.handle(messageEvent{peer: p, raw: tabsListMessage(t, tabGitHub)})

	assert.Nil(t, h.pending)
	assert.Equal(t, []Tab{tabGitHub}, h.snapshot(), "late tabs-list still updates the snapshot")
}

func TestDisconnectClearsSnapshotButLeavesPendingToTimer(t *testing.T) {
	h, timers := newSyncHub()
	p := newFakePeer("p1")
	h.handle(connectEvent{peer: p})
	h.handle(messageEvent{peer: p, raw: tabsListMessage(t, tabGitHub)})

	reply := requestTabsSync(h)
	h.handle(disconnectEvent{peer: p})

	assertPending(t, reply)
	assert.Empty(t, h.snapshot())

	timers.last().fire()
	drain(h)
	assert.Empty(t, receive(t, reply), "timeout after disconnect yields the empty snapshot")
}

func TestDisconnectThenReconnectRepopulates(t *testing.T) {
	h, timers := newSyncHub()
	p1 := newFakePeer("p1")
	h.handle(connectEvent{peer: p1})
	h.handle(messageEvent{peer: p1, raw: tabsListMessage(t, tabGitHub)})
	h.handle(disconnectEvent{peer: p1})

	assert.Empty(t, receive(t, requestTabsSync(h)))
	assert.Empty(t, timers.timers)

	p2 := newFakePeer("p2")
	h.handle(connectEvent{peer: p2})
	reply := requestTabsSync(h)
	h.handle(messageEvent{peer: p2, raw: tabsListMessage(t, tabDocs)})

	assert.Equal(t, []Tab{tabDocs}, receive(t, reply))
}

func TestSecondPeerReplacesFirst(t *testing.T) {
	h, _ := newSyncHub()
	p1 := newFakePeer("p1")
	p2 := newFakePeer("p2")

	h.handle(connectEvent{peer: p1})
	h.handle(messageEvent{peer: p1, raw: tabsListMessage(t, tabGitHub)})
	h.handle(connectEvent{peer: p2})

	assert.True(t, p1.isClosed())
	assert.Equal(t, p2, h.peer)
	assert.Empty(t, h.snapshot(), "a new peer starts from empty tab state")

	// The replaced peer's late traffic and disconnect are ignored.
	h.handle(messageEvent{peer: p1, raw: tabsListMessage(t, tabGitHub)})
	h.handle(disconnectEvent{peer: p1})
	assert.Equal(t, p2, h.peer)
	assert.Empty(t, h.snapshot())
}

func TestPendingRequestFollowsReplacementPeer(t *testing.T) {
	h, _ := newSyncHub()
	p1 := newFakePeer("p1")
	h.handle(connectEvent{peer: p1})
	first := requestTabsSync(h)

	p2 := newFakePeer("p2")
	h.handle(connectEvent{peer: p2})
	second := requestTabsSync(h)

	assert.Equal(t, []MessageType{TypeGetTabs}, p2.sentTypes(), "new peer is asked as well")

	h.handle(messageEvent{peer: p2, raw: tabsListMessage(t, tabDocs)})
	assert.Equal(t, []Tab{tabDocs}, receive(t, first))
	assert.Equal(t, []Tab{tabDocs}, receive(t, second))
}

func TestReconnectReissuesPendingRequest(t *testing.T) {
	h, timers := newSyncHub()
	p1 := newFakePeer("p1")
	h.handle(connectEvent{peer: p1})
	reply := requestTabsSync(h)
	h.handle(disconnectEvent{peer: p1})

	p2 := newFakePeer("p2")
	h.handle(connectEvent{peer: p2})

	assert.Equal(t, []MessageType{TypeGetTabs}, p2.sentTypes(), "pending request is sent on connect")
	assert.Len(t, timers.timers, 1, "no new deadline")
	assertPending(t, reply)

	h.handle(messageEvent{peer: p2, raw: tabsListMessage(t, tabDocs)})
	assert.Equal(t, []Tab{tabDocs}, receive(t, reply))
}

func TestConnectWithoutPendingRequestSendsNothing(t *testing.T) {
	h, _ := newSyncHub()
	p := newFakePeer("p1")
	h.handle(connectEvent{peer: p})
	assert.Empty(t, p.sentTypes())
}

func TestSendWithoutPeer(t *testing.T) {
	h, _ := newSyncHub()
	assert.False(t, h.send(TypeActivateTab, ActivateTabPayload{TabID: 1, WindowID: 2}))
}

func TestSendEnqueueFailure(t *testing.T) {
	h, _ := newSyncHub()
	p := newFakePeer("p1")
	p.rejectIO = true
	h.handle(connectEvent{peer: p})

	assert.False(t, h.send(TypeActivateTab, ActivateTabPayload{TabID: 1, WindowID: 2}))

	reply := requestTabsSync(h)
	assert.Empty(t, receive(t, reply), "unsendable get-tabs falls back to the snapshot")
	assert.Nil(t, h.pending)
}

func TestMalformedAndInformationalMessagesAreSwallowed(t *testing.T) {
	h, _ := newSyncHub()
	p := newFakePeer("p1")
	h.handle(connectEvent{peer: p})

	assert.NotPanics(t, func() {
		h.handle(messageEvent{peer: p, raw: []byte(`{not json`)})
		h.handle(messageEvent{peer: p, raw: []byte(`{"type":"explode"}`)})
		h.handle(messageEvent{peer: p, raw: []byte(`{"type":"tabs-list","payload":{"tabs":7}}`)})
		h.handle(messageEvent{peer: p, raw: []byte(`{"type":"tab-activated","payload":{"tabId":1,"windowId":2}}`)})
		h.handle(messageEvent{peer: p, raw: []byte(`{"type":"connection-status","payload":{"connected":true}}`)})
		h.handle(messageEvent{peer: p, raw: []byte(`{"type":"get-tabs"}`)})
	})

	assert.Equal(t, p, h.peer)
	assert.Equal(t, uint64(4), h.messagesIn)
}

func TestStatus(t *testing.T) {
	h, _ := newSyncHub()
	assert.False(t, h.status().Connected)

	p := newFakePeer("127.0.0.1:5555")
	h.handle(connectEvent{peer: p})
	h.handle(messageEvent{peer: p, raw: tabsListMessage(t, tabGitHub, tabDocs)})

	st := h.status()
	assert.True(t, st.Connected)
	assert.Equal(t, "127.0.0.1:5555", st.RemoteAddr)
	assert.NotNil(t, st.ConnectedSince)
	assert.Equal(t, 2, st.TabsCached)
}

// The remaining tests run the real event loop and real timers.

func startHub(t *testing.T, timeout time.Duration) *Hub {
	t.Helper()
	h := NewHub(Options{TabRequestTimeout: timeout})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func TestUnresponsivePeerTimesOutWithCachedTabs(t *testing.T) {
	h := startHub(t, 50*time.Millisecond)
	p := newFakePeer("p1")
	h.Connect(p)
	h.Deliver(p, tabsListMessage(t, tabGitHub))

	start := time.Now()
	tabs := h.RequestTabs(context.Background())

	assert.Equal(t, []Tab{tabGitHub}, tabs)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.False(t, h.Status().RequestPending)
}

func TestUnresponsivePeerWithNothingCached(t *testing.T) {
	h := startHub(t, 30*time.Millisecond)
	h.Connect(newFakePeer("p1"))

	assert.Empty(t, h.RequestTabs(context.Background()))
}

func TestRequestTabsRoundTrip(t *testing.T) {
	h := startHub(t, 2*time.Second)
	p := newFakePeer("p1")
	h.Connect(p)

	result := make(chan []Tab, 1)
	go func() { result <- h.RequestTabs(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(p.sentTypes()) == 1
	}, time.Second, 5*time.Millisecond)
	h.Deliver(p, tabsListMessage(t, tabDocs))

	select {
	case tabs := <-result:
		assert.Equal(t, []Tab{tabDocs}, tabs)
	case <-time.After(time.Second):
		t.Fatal("RequestTabs did not return")
	}
}

func TestRequestTabsContextCancelled(t *testing.T) {
	h := startHub(t, time.Minute)
	h.Connect(newFakePeer("p1"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Empty(t, h.RequestTabs(ctx))
}

func TestCallsAfterStopDegradeToOffline(t *testing.T) {
	h := NewHub(Options{})
	go h.Run(context.Background())
	p := newFakePeer("p1")
	h.Connect(p)
	require.True(t, h.Connected())
	h.Stop()
	<-h.Done()

	assert.True(t, p.isClosed())
	assert.False(t, h.Send(TypeGetTabs, nil))
	assert.Empty(t, h.RequestTabs(context.Background()))
	assert.False(t, h.Connected())
}
