// Package notify delivers change events to subscribers after successful
// store mutations. Delivery is synchronous and in-process; events are not
// persisted and are dropped when nobody is subscribed.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Event describes a completed mutation of the store. Key is nil for a save
// and points at the removed key for a removal; save events act as a general
// change signal rather than identifying the written key.
type Event struct {
	Key *string
}

// SaveEvent returns the event published after a successful save.
func SaveEvent() Event {
	return Event{}
}

// RemoveEvent returns the event published after a successful removal,
// carrying the removed key.
func RemoveEvent(key string) Event {
	return Event{Key: &key}
}

// Handler receives change events. Handlers run synchronously on the
// publisher's goroutine and must return quickly; anything slow belongs on a
// goroutine the handler owns.
type Handler func(ctx context.Context, ev Event)

// Subscription identifies a registered handler for later removal.
type Subscription string

type entry struct {
	id      Subscription
	handler Handler
}

// Notifier fans events out to registered handlers in registration order.
// Subscribe, Unsubscribe, and Publish are safe to call from different
// goroutines. There is no replay: a subscriber only sees events published
// after it registered.
type Notifier struct {
	mu      sync.Mutex
	entries []entry
	logger  *slog.Logger
}

// New creates a notifier. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Subscribe registers a handler and returns its subscription handle.
// A nil handler is ignored and yields a handle that unsubscribes nothing.
func (n *Notifier) Subscribe(h Handler) Subscription {
	id := Subscription(uuid.NewString())
	if h == nil {
		return id
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry{id: id, handler: h})
	return id
}

// Unsubscribe removes the handler registered under sub. Unknown handles are
// a no-op, so double unsubscribes are harmless.
func (n *Notifier) Unsubscribe(sub Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, e := range n.entries {
		if e.id == sub {
			n.entries = append(n.entries[:i], n.entries[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every handler in registration order on the calling
// goroutine. It returns once all handlers have run. Handler panics are
// recovered and logged so a misbehaving subscriber cannot fail the mutation
// that triggered the event.
func (n *Notifier) Publish(ctx context.Context, ev Event) {
	n.mu.Lock()
	snapshot := make([]entry, len(n.entries))
	copy(snapshot, n.entries)
	n.mu.Unlock()

	for _, e := range snapshot {
		n.dispatch(ctx, e, ev)
	}
}

func (n *Notifier) dispatch(ctx context.Context, e entry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("change handler panicked", "subscription", string(e.id), "panic", r)
		}
	}()
	e.handler(ctx, ev)
}
