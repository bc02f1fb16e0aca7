// Package broadcast fans session events out to subscribers in publish order.
package broadcast

import (
	"context"
	"sync"

	domainauth "github.com/skoruppa/NuvioTV-sub003/internal/domain/auth"
)

// Hub delivers every published event to every subscriber, in order, without
// blocking the publisher. New subscribers first receive the latest status.
type Hub struct {
	mu      sync.Mutex
	current domainauth.SessionEvent
	subs    map[*subscriber]struct{}
	closed  bool
}

// NewHub returns a hub whose initial status is Initializing.
func NewHub() *Hub {
	return &Hub{
		current: domainauth.Initializing(),
		subs:    make(map[*subscriber]struct{}),
	}
}

// Current returns the latest non-transient event.
func (h *Hub) Current() domainauth.SessionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Publish queues ev for all subscribers. Transient errors are delivered but do
// not replace the current status handed to new subscribers.
func (h *Hub) Publish(ev domainauth.SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if ev.Status != domainauth.StatusTransientError {
		h.current = ev
	}
	for s := range h.subs {
		s.push(ev)
	}
}

// Subscribe returns a channel that yields the current status followed by every
// later event. The channel is closed when ctx ends or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context) <-chan domainauth.SessionEvent {
	subCtx, cancel := context.WithCancel(ctx)
	s := &subscriber{
		out:    make(chan domainauth.SessionEvent),
		wake:   make(chan struct{}, 1),
		cancel: cancel,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		close(s.out)
		return s.out
	}
	s.queue = append(s.queue, h.current)
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go func() {
		s.pump(subCtx)
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		cancel()
	}()
	return s.out
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.cancel()
	}
}

type subscriber struct {
	out    chan domainauth.SessionEvent
	wake   chan struct{}
	cancel context.CancelFunc

	mu    sync.Mutex
	queue []domainauth.SessionEvent
}

func (s *subscriber) push(ev domainauth.SessionEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
