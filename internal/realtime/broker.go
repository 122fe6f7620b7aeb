// Package realtime is MentorFlow's change feed.
//
// Every successful write in the backend publishes an Event. Subscribers
// (WebSocket streams, leaderboard controllers) register a Filter and get
// matching events delivered on their own goroutine.
//
// DELIVERY GUARANTEES:
//   - at-most-once: a subscriber whose buffer is full misses events
//   - no cross-table ordering promise
//
// Handlers must therefore be idempotent: the usual handler just re-runs the
// relevant fetch, which is safe no matter how many events arrive or when.
package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event describes one row change. Record holds the changed row (a model
// value) when the writer has it at hand; it may be nil.
type Event struct {
	Table  string    `json:"table"`
	Type   EventType `json:"type"`
	UserID string    `json:"user_id,omitempty"`
	Record any       `json:"record,omitempty"`
	At     time.Time `json:"at"`
}

// Filter selects events. Empty fields match anything.
type Filter struct {
	Table  string
	Type   EventType
	UserID string
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.Type != "" && f.Type != e.Type {
		return false
	}
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	return true
}

// Handler receives matching events.
type Handler func(Event)

const defaultBuffer = 64

// Broker fans published events out to subscribers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*Channel
	nextID uint64
	closed bool
	logger *slog.Logger
}

// NewBroker creates an empty Broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		subs:   make(map[uint64]*Channel),
		logger: logger,
	}
}

// Subscribe registers h for events matching f. name only shows up in logs.
// The returned Channel must be unsubscribed when the caller is done.
func (b *Broker) Subscribe(name string, f Filter, h Handler) *Channel {
	ch := &Channel{
		name:   name,
		filter: f,
		events: make(chan Event, defaultBuffer),
		done:   make(chan struct{}),
		broker: b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch.done)
		return ch
	}
	b.nextID++
	ch.id = b.nextID
	b.subs[ch.id] = ch
	b.mu.Unlock()

	go ch.loop(h)
	return ch
}

// Publish delivers e to every matching subscriber without blocking.
func (b *Broker) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		if !ch.filter.Matches(e) {
			continue
		}
		select {
		case ch.events <- e:
		default:
			b.logger.Warn("realtime: subscriber buffer full, dropping event",
				slog.String("channel", ch.name),
				slog.String("table", e.Table),
				slog.String("type", string(e.Type)),
			)
		}
	}
}

// Close unsubscribes everybody. Later Subscribe calls return dead channels.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Channel)
	b.closed = true
	b.mu.Unlock()

	for _, ch := range subs {
		ch.stop()
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Channel is one subscription.
type Channel struct {
	id     uint64
	name   string
	filter Filter
	events chan Event
	done   chan struct{}
	once   sync.Once
	broker *Broker
}

// Unsubscribe stops delivery. Safe to call more than once.
func (c *Channel) Unsubscribe() {
	c.broker.remove(c.id)
	c.stop()
}

func (c *Channel) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *Channel) loop(h Handler) {
	for {
		select {
		case e := <-c.events:
			h(e)
		case <-c.done:
			return
		}
	}
}
