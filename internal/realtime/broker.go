package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind tags what changed about a thread.
type EventKind string

const (
	EventThreadCreated EventKind = "thread_created"
	EventThreadUpdated EventKind = "thread_updated"
	EventMessageAdded  EventKind = "message_added"
)

// Event announces that a concern thread changed. It carries identifiers
// only; subscribers re-fetch whatever state they need. ParentID is the
// thread creator, present so parent-scoped feeds can filter without a
// lookup.
type Event struct {
	Kind     EventKind `json:"kind"`
	ThreadID uuid.UUID `json:"threadId"`
	ParentID uuid.UUID `json:"parentId"`

	// Origin identifies the process that published the event, so a
	// cross-process bridge can skip echoes of its own publishes.
	Origin string `json:"origin,omitempty"`
}

// Broker fans events out to in-process subscribers. Subscriptions live
// until their cancel func runs, normally tied to a controller's or a
// WebSocket connection's lifetime.
type Broker struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{
		logger: logger,
		subs:   make(map[int]chan Event),
	}
}

// Subscribe registers a listener and returns its event channel plus a
// cancel func. Cancel is idempotent and closes the channel.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	// Buffered so a briefly busy subscriber doesn't stall Publish.
	ch := make(chan Event, 16)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber. A subscriber whose
// buffer is full loses the event; since events are re-fetch hints and
// every later event triggers the same re-fetch, a drop costs at most
// one extra refresh delay.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}
