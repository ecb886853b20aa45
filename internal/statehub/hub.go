// Package statehub fans out values to subscribers keyed by tag. Each tag
// remembers its latest value so late subscribers start from current state.
package statehub

import "sync"

const defaultBuffer = 16

// Hub delivers published values to every subscriber of the value's tag.
// Delivery never blocks the publisher: a subscriber whose buffer is full loses
// its oldest pending value in favour of the newest.
type Hub[T any] struct {
	mu     sync.Mutex
	buffer int
	latest map[string]T
	subs   map[string]map[*Subscription[T]]struct{}
	closed bool
}

// New constructs a hub whose subscriptions buffer up to buffer values.
func New[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub[T]{
		buffer: buffer,
		latest: make(map[string]T),
		subs:   make(map[string]map[*Subscription[T]]struct{}),
	}
}

// Subscription is a live feed of values for one tag.
type Subscription[T any] struct {
	hub  *Hub[T]
	tag  string
	ch   chan T
	once sync.Once
}

// C returns the receive channel. It is closed by Unsubscribe or Hub.Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Tag returns the tag this subscription follows.
func (s *Subscription[T]) Tag() string { return s.tag }

// Unsubscribe detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription[T]) Unsubscribe() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.detachLocked(s)
}

// Subscribe registers a feed for tag. When the tag already has a value, it is
// queued on the new subscription before any later publication.
func (h *Hub[T]) Subscribe(tag string) *Subscription[T] {
	sub := &Subscription[T]{hub: h, tag: tag, ch: make(chan T, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	if v, ok := h.latest[tag]; ok {
		sub.ch <- v
	}
	set, ok := h.subs[tag]
	if !ok {
		set = make(map[*Subscription[T]]struct{})
		h.subs[tag] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish records v as the latest value for tag and delivers it.
func (h *Hub[T]) Publish(tag string, v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest[tag] = v
	for sub := range h.subs[tag] {
		deliver(sub.ch, v)
	}
}

// Latest returns the most recent value published for tag.
func (h *Hub[T]) Latest(tag string) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.latest[tag]
	return v, ok
}

// Subscribers returns the number of live subscriptions for tag.
func (h *Hub[T]) Subscribers(tag string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[tag])
}

// Close detaches every subscription. Later publications are dropped.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			h.detachLocked(sub)
		}
	}
}

func (h *Hub[T]) detachLocked(sub *Subscription[T]) {
	if set, ok := h.subs[sub.tag]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.tag)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}

// deliver sends v without blocking, discarding the oldest buffered value when
// the channel is full. Callers hold the hub lock, so no other sender races.
func deliver[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
