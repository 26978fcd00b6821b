package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
)

// MessageKind discriminates what a bus message carries.
type MessageKind string

const (
	// KindEvent carries a full finalized DetectionEvent.
	KindEvent MessageKind = "event"
	// KindStatus carries a lightweight verification-state transition.
	KindStatus MessageKind = "status"
	// KindAlert carries a high/critical watchlist match or an abandoned
	// ledger anchoring.
	KindAlert MessageKind = "alert"
	// KindGap tells a subscriber that messages were dropped from its
	// queue and it should resynchronize via the query API.
	KindGap MessageKind = "gap"
)

// StatusUpdate is published when an event's verification state changes.
type StatusUpdate struct {
	EventID           string                   `json:"event_id"`
	CameraID          string                   `json:"camera_id"`
	VerificationState models.VerificationState `json:"verification_state"`
	LedgerTxID        string                   `json:"ledger_tx_id,omitempty"`
}

// Message is one unit of fan-out. Exactly one payload field is set,
// according to Kind. Subscribers receive shared read-only snapshots;
// they must not mutate Event. MatchedRisk is the risk level of the
// matched watchlist person, when there is one; events don't carry it
// themselves.
type Message struct {
	Kind        MessageKind            `json:"kind"`
	Event       *models.DetectionEvent `json:"event,omitempty"`
	MatchedRisk models.RiskLevel       `json:"matched_risk,omitempty"`
	Status      *StatusUpdate          `json:"status,omitempty"`
	Alert       string                 `json:"alert,omitempty"`
	Dropped     int                    `json:"dropped,omitempty"`
}

// Filter selects which messages a subscriber receives. Zero value
// matches everything. Status and gap messages for a filtered camera are
// delivered alongside its events.
type Filter struct {
	CameraID string
	Types    []models.DetectionType
	MinRisk  models.RiskLevel
}

// Matches reports whether msg passes the filter. Gap markers always pass.
func (f Filter) Matches(msg Message) bool {
	switch msg.Kind {
	case KindGap:
		return true
	case KindStatus:
		return f.CameraID == "" || msg.Status == nil || msg.Status.CameraID == f.CameraID
	}

	ev := msg.Event
	if ev == nil {
		return true
	}
	if f.CameraID != "" && ev.CameraID != f.CameraID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if ev.DetectionType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinRisk != "" {
		// Risk filtering only applies to matched events; unmatched
		// events are suppressed when a minimum risk is requested.
		if ev.MatchedPersonID == nil {
			return false
		}
		if msg.MatchedRisk.Rank() < f.MinRisk.Rank() {
			return false
		}
	}
	return true
}

// Subscription is one subscriber's bounded queue. Consumers pull with
// Next; the publisher never blocks on a slow consumer.
type Subscription struct {
	id     uuid.UUID
	filter Filter

	mu      sync.Mutex
	queue   []Message
	dropped int
	closed  bool

	notify chan struct{}
	bus    *Bus
}

// Bus is the in-process publish/subscribe fan-out for finalized events.
// Single-writer publish, multi-reader consumption.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	buffer int
}

// New creates a bus whose subscribers each hold at most buffer queued
// messages before drop-oldest kicks in.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		subs:   make(map[uuid.UUID]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:     uuid.New(),
		filter: filter,
		notify: make(chan struct{}, 1),
		bus:    b,
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	observability.BusSubscribers.Inc()
	return sub
}

// Publish delivers msg to every subscriber whose filter matches. A full
// subscriber queue loses its oldest message and gains a pending gap
// marker; other subscribers and the publisher are unaffected.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.filter.Matches(msg) {
			sub.push(msg, b.buffer)
		}
	}
}

// Close unsubscribes sub. Idempotent and safe to call concurrently with
// delivery.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	observability.BusSubscribers.Dec()

	// Wake a blocked Next so it can observe the close.
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a message is available, the context is cancelled, or
// the subscription is closed. A pending gap marker is delivered before
// any queued message so the consumer learns about loss in order.
func (s *Subscription) Next(ctx context.Context) (Message, bool) {
	for {
		s.mu.Lock()
		if s.dropped > 0 {
			n := s.dropped
			s.dropped = 0
			s.mu.Unlock()
			return Message{Kind: KindGap, Dropped: n}, true
		}
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, true
		}
		if s.closed {
			s.mu.Unlock()
			return Message{}, false
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, false
		case <-s.notify:
		}
	}
}

func (s *Subscription) push(msg Message, limit int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= limit {
		s.queue = s.queue[1:]
		s.dropped++
		observability.BusDropped.Inc()
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
