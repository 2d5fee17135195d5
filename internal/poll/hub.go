package poll

import (
	"sync"

	"github.com/skobkin/tempstatus-web/internal/chart"
)

// DefaultHubBuffer is the per-subscriber queue length.
const DefaultHubBuffer = 32

// Update is one chart refresh published by the hub.
type Update struct {
	Path  string
	Info  chart.Info
	Frame chart.Frame
}

// Hub fans chart updates out to subscribers. Slow subscribers lose their
// oldest queued update instead of blocking the poll loop.
type Hub struct {
	buffer int

	mu          sync.RWMutex
	latest      map[string]Update
	subscribers map[*subscriber]struct{}
}

// NewHub creates a hub whose subscribers queue up to buffer updates.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultHubBuffer
	}
	return &Hub{
		buffer:      buffer,
		latest:      make(map[string]Update),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Present is a Presenter publishing every refreshed chart.
func (h *Hub) Present(surface *chart.Surface, info chart.Info) {
	frame, ok := surface.Frame()
	if !ok {
		return
	}
	h.Publish(Update{Path: frame.Path, Info: info, Frame: frame})
}

// Publish stores u as the latest update for its path and delivers it.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	h.latest[u.Path] = u
	targets := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.send(u)
	}
}

// Subscribe registers a listener. The latest update of every chart is
// queued immediately.
func (h *Hub) Subscribe() (<-chan Update, func()) {
	sub := newSubscriber(h.buffer)

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	for _, u := range h.latest {
		sub.send(u)
	}
	h.mu.Unlock()

	return sub.channel(), func() { h.remove(sub) }
}

// Latest returns the last update published for path.
func (h *Hub) Latest(path string) (Update, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.latest[path]
	return u, ok
}

// Subscribers reports the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
	sub.close()
}

type subscriber struct {
	ch     chan Update
	mu     sync.Mutex
	closed bool
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{ch: make(chan Update, buffer)}
}

func (s *subscriber) channel() <-chan Update {
	return s.ch
}

func (s *subscriber) send(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- u:
		return
	default:
		// Drop oldest to make room.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- u:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
