// Package progress implements the event bus between transfer workers and
// external observers. Non-terminal events are coalesced per file under
// backpressure (latest value wins); terminal events are queued without bound
// and delivered at least once, so a slow subscriber can always tell how a job
// ended even if it missed every intermediate percentage.
package progress

import (
	"sync"

	"github.com/modelfetch-dev/modelfetch/pkg/model"
)

// Bus fans events out to any number of independent subscribers. One slow
// subscriber never affects delivery to another: each subscription owns its
// buffers and pump goroutine.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Publish delivers the event to every current subscriber. Never blocks on
// subscriber consumption.
func (b *Bus) Publish(ev model.ProgressEvent) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.offer(ev)
	}
}

// Subscribe registers a new subscriber whose delivery channel has the given
// capacity. Callers must drain C or Close the subscription.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	s := &Subscription{
		bus:       b,
		ch:        make(chan model.ProgressEvent, buffer),
		done:      make(chan struct{}),
		coalesced: make(map[string]model.ProgressEvent),
	}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		close(s.done)
		s.closed = true
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Close shuts the bus down and closes all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	bus  *Bus
	ch   chan model.ProgressEvent
	done chan struct{}

	mu   sync.Mutex
	cond *sync.Cond
	// terminals holds terminal events in arrival order. Grows without bound
	// rather than ever dropping one.
	terminals []model.ProgressEvent
	// coalesced keeps only the latest non-terminal event per file slot;
	// order preserves first-seen ordering of the slots.
	coalesced map[string]model.ProgressEvent
	order     []string
	closed    bool
}

// C returns the channel events are delivered on. It is closed after Close
// or once the bus shuts down.
func (s *Subscription) C() <-chan model.ProgressEvent {
	return s.ch
}

// Close detaches the subscription from the bus. Pending events are dropped.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *Subscription) offer(ev model.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.Terminal {
		s.terminals = append(s.terminals, ev)
	} else {
		key := ev.Key()
		if _, seen := s.coalesced[key]; !seen {
			s.order = append(s.order, key)
		}
		s.coalesced[key] = ev
	}
	s.cond.Signal()
}

// pump moves events from the internal buffers to the delivery channel.
// Terminal events take priority over coalesced progress updates.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for !s.closed && len(s.terminals) == 0 && len(s.order) == 0 {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			close(s.ch)
			return
		}
		var ev model.ProgressEvent
		if len(s.terminals) > 0 {
			ev = s.terminals[0]
			s.terminals = s.terminals[1:]
		} else {
			key := s.order[0]
			s.order = s.order[1:]
			ev = s.coalesced[key]
			delete(s.coalesced, key)
		}
		s.mu.Unlock()

		select {
		case s.ch <- ev:
		case <-s.done:
			close(s.ch)
			return
		}
	}
}
