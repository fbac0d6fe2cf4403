// Package stream provides snapshot distribution for price bar updates.
package stream

import (
	"sync"
	"time"

	"habitstock/internal/models"
)

// Key identifies one observed price bar: a user and a calendar date.
type Key struct {
	UserID string
	Date   string
}

// Snapshot is the latest state of one user's bar for one date. It is a
// plain comparable value so structural equality is a direct comparison.
type Snapshot struct {
	UserID string
	Bar    models.StockBar
}

// Key returns the hub key for this snapshot.
func (s Snapshot) Key() Key {
	return Key{UserID: s.UserID, Date: s.Bar.Date}
}

// HubConfig holds configuration for the snapshot hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscription's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{SubscriberBufferSize: 16}
}

// Hub fans the latest snapshot per (user, date) key out to subscribers.
//
// Delivery is de-duplicated per subscriber: a snapshot structurally equal
// to the last one delivered on that subscription is skipped, so replaying
// an identical server state is idempotent and causes no redundant work
// downstream. Cancellation is synchronized with publishing: once Cancel
// returns, the subscription receives nothing further, which keeps stale-key
// deliveries from interleaving with a re-subscription on a new key.
type Hub struct {
	config HubConfig

	mu   sync.RWMutex
	subs map[Key][]*Subscription

	// Metrics
	published uint64
	delivered uint64
	deduped   uint64
	dropped   uint64
}

// Subscription is one subscriber's handle for a key.
type Subscription struct {
	key       Key
	ch        chan Snapshot
	createdAt time.Time

	// guarded by the hub mutex
	canceled bool
	last     *Snapshot
}

// NewHub creates a hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config: config,
		subs:   make(map[Key][]*Subscription),
	}
}

// Subscribe registers a subscriber for a key. A key with an empty Date is a
// user-wide subscription: it receives snapshots for every date of that user.
func (h *Hub) Subscribe(key Key) *Subscription {
	sub := &Subscription{
		key:       key,
		ch:        make(chan Snapshot, h.config.SubscriberBufferSize),
		createdAt: time.Now(),
	}

	h.mu.Lock()
	h.subs[key] = append(h.subs[key], sub)
	h.mu.Unlock()

	return sub
}

// C returns the channel snapshots are delivered on. The channel is closed
// when the subscription is canceled.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Cancel removes the subscription from the hub. After Cancel returns no
// further snapshot is delivered and the channel is closed.
func (h *Hub) Cancel(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.canceled {
		return
	}
	sub.canceled = true
	close(sub.ch)

	subs := h.subs[sub.key]
	for i, s := range subs {
		if s == sub {
			h.subs[sub.key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.key]) == 0 {
		delete(h.subs, sub.key)
	}
}

// Rotate cancels old and subscribes to key in one step, for observers whose
// watched (user, date) changed.
func (h *Hub) Rotate(old *Subscription, key Key) *Subscription {
	if old != nil {
		h.Cancel(old)
	}
	return h.Subscribe(key)
}

// Publish delivers snap to all subscribers of its key, plus any user-wide
// subscribers of the snapshot's user. Sends never block: a subscriber with
// a full buffer misses the intermediate state and will catch up on the next
// publish.
func (h *Hub) Publish(snap Snapshot) {
	key := snap.Key()
	wild := Key{UserID: snap.UserID}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.published++
	h.deliverLocked(h.subs[key], snap)
	h.deliverLocked(h.subs[wild], snap)
}

func (h *Hub) deliverLocked(subs []*Subscription, snap Snapshot) {
	for _, sub := range subs {
		if sub.canceled {
			continue
		}
		if sub.last != nil && *sub.last == snap {
			h.deduped++
			continue
		}
		select {
		case sub.ch <- snap:
			snapCopy := snap
			sub.last = &snapCopy
			h.delivered++
		default:
			h.dropped++
		}
	}
}

// SubscriberCount returns the number of subscribers for a key.
func (h *Hub) SubscriberCount(key Key) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// HubMetrics contains hub delivery counters.
type HubMetrics struct {
	Published uint64
	Delivered uint64
	Deduped   uint64
	Dropped   uint64
}

// Metrics returns a copy of the hub's delivery counters.
func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubMetrics{
		Published: h.published,
		Delivered: h.delivered,
		Deduped:   h.deduped,
		Dropped:   h.dropped,
	}
}
