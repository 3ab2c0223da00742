package persist

import (
	"sync"

	"github.com/google/uuid"
)

// PersistentNotification announces one successful persistent update.
type PersistentNotification struct {
	ID        string
	KG        string
	Relation  string
	Operation string // "insert" or "delete"
	Count     int
}

// subscriberBuffer is the per-subscriber channel size; Publish never
// blocks waiting on a slow subscriber, it coalesces by dropping when
// the buffer is full (best-effort delivery, per spec).
const subscriberBuffer = 64

// Notifier fans out PersistentNotifications to any number of
// subscribers, matching the "broadcast sender" shape the concurrency
// model describes for shard updates: each shard's writer publishes,
// subscribers drain independently and may lag.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]chan PersistentNotification
}

// NewNotifier creates an empty broadcast hub.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]chan PersistentNotification)}
}

// Subscribe registers a new listener and returns its channel and an id
// to later Unsubscribe with.
func (n *Notifier) Subscribe() (string, <-chan PersistentNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan PersistentNotification, subscriberBuffer)
	n.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (n *Notifier) Unsubscribe(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(ch)
	}
}

// Publish broadcasts a notification (stamping it with a fresh id) to
// every current subscriber. A subscriber whose buffer is full is
// skipped rather than blocking the writer that triggered the update.
func (n *Notifier) Publish(kg, relation, operation string, count int) {
	note := PersistentNotification{
		ID:        uuid.NewString(),
		KG:        kg,
		Relation:  relation,
		Operation: operation,
		Count:     count,
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- note:
		default:
			// subscriber lagging; drop rather than block the writer.
		}
	}
}
