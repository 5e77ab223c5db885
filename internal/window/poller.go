package window

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
)

// DefaultPollInterval is how often the Poller refreshes the window list
const DefaultPollInterval = 5 * time.Second

// Lister is the part of Engine the Poller needs
type Lister interface {
	ListWindows(ctx context.Context) []Descriptor
}

// Poller refreshes the window list on a fixed interval, so windows seen on
// any desktop keep their cache entries fresh, and pushes changes to
// subscribers.
type Poller struct {
	lister   Lister
	interval time.Duration

	mu        sync.RWMutex
	latest    []Descriptor
	listeners []chan []Descriptor

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewPoller creates a poller. An interval of 0 disables background polling;
// Refresh still works.
func NewPoller(lister Lister, interval time.Duration) *Poller {
	return &Poller{
		lister:   lister,
		interval: interval,
		latest:   []Descriptor{},
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling in a goroutine
func (p *Poller) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	if p.interval <= 0 {
		close(p.done)
		logger.WithComponent("window-engine").Info().Msg("Window polling disabled")
		return
	}
	go p.run(ctx)
}

// Stop ends polling and waits for the loop to exit
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	if p.started.Load() {
		<-p.done
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh runs one enumeration pass, stores it and notifies subscribers when
// the list changed.
func (p *Poller) Refresh(ctx context.Context) []Descriptor {
	windows := p.lister.ListWindows(ctx)

	p.mu.Lock()
	changed := !slices.Equal(p.latest, windows)
	p.latest = windows
	p.mu.Unlock()

	if changed {
		p.notifyListeners(windows)
	}
	return windows
}

// Latest returns the result of the most recent pass
func (p *Poller) Latest() []Descriptor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.latest)
}

// Subscribe adds a listener for window list changes
func (p *Poller) Subscribe() chan []Descriptor {
	ch := make(chan []Descriptor, 4)
	p.mu.Lock()
	p.listeners = append(p.listeners, ch)
	p.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel
func (p *Poller) Unsubscribe(ch chan []Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, listener := range p.listeners {
		if listener == ch {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (p *Poller) notifyListeners(windows []Descriptor) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, listener := range p.listeners {
		select {
		case listener <- slices.Clone(windows):
		default:
			// Slow subscriber, it will catch up on the next change
		}
	}
}
