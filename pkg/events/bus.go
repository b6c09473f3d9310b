package events

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrBusClosed is returned by Subscribe after the bus has been shut down.
var ErrBusClosed = errors.New("event bus is closed")

// Envelope is what subscribers receive: the event type plus the marshaled
// payload ready for SSE framing.
type Envelope struct {
	Type string
	Data json.RawMessage
}

// Subscription is one subscriber's view of a project channel. Read events
// from Events(); the channel closes when the subscription ends.
type Subscription struct {
	id        string
	projectID string
	ch        chan Envelope

	// mu serializes push against close so a send never races a close.
	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// Events returns the receive channel. Closed on Unsubscribe, CloseProject
// and bus Close.
func (s *Subscription) Events() <-chan Envelope {
	return s.ch
}

// ProjectID returns the channel this subscription listens on.
func (s *Subscription) ProjectID() string {
	return s.projectID
}

// Dropped returns how many events were discarded because this subscriber's
// backlog was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// push enqueues one event, evicting the oldest buffered event when the
// backlog is full. The newest event always wins.
func (s *Subscription) push(ev Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		// Full. Evict one and retry; if the consumer drained in between,
		// the retry lands immediately.
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus fans events out to per-project subscribers. One instance serves the
// whole process.
type Bus struct {
	mu      sync.RWMutex
	closed  bool
	byProj  map[string]map[string]*Subscription // projectID → subscription id → sub
	backlog int

	logger *slog.Logger
}

// NewBus creates a Bus. backlog <= 0 selects DefaultBacklog.
func NewBus(backlog int, logger *slog.Logger) *Bus {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		byProj:  make(map[string]map[string]*Subscription),
		backlog: backlog,
		logger:  logger,
	}
}

// Subscribe registers a new subscriber for a project's events. The caller
// must Unsubscribe when done or the subscription leaks.
func (b *Bus) Subscribe(projectID string) (*Subscription, error) {
	sub := &Subscription{
		id:        uuid.New().String(),
		projectID: projectID,
		ch:        make(chan Envelope, b.backlog),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	subs, ok := b.byProj[projectID]
	if !ok {
		subs = make(map[string]*Subscription)
		b.byProj[projectID] = subs
	}
	subs[sub.id] = sub
	return sub, nil
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// more than once and safe on subscriptions already closed by the bus.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if subs, ok := b.byProj[sub.projectID]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.byProj, sub.projectID)
		}
	}
	b.mu.Unlock()

	sub.close()
}

// publish marshals the payload once and fans it out to every subscriber of
// the project. A payload that cannot marshal is logged and dropped; the bus
// never fails the caller.
func (b *Bus) publish(projectID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("failed to marshal event payload",
			"project_id", projectID, "event_type", eventType, "error", err)
		return
	}

	// Snapshot subscriber pointers under the lock, then release before
	// pushing so a full backlog never stalls Subscribe/Unsubscribe.
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.byProj[projectID]))
	for _, sub := range b.byProj[projectID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	ev := Envelope{Type: eventType, Data: data}
	for _, sub := range subs {
		sub.push(ev)
	}
}

// SubscriberCount returns the number of active subscribers for a project.
func (b *Bus) SubscriberCount(projectID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byProj[projectID])
}

// CloseProject ends every subscription on a project's channel. Called after
// the project_deleted event so subscribers see it before the close.
func (b *Bus) CloseProject(projectID string) {
	b.mu.Lock()
	subs := b.byProj[projectID]
	delete(b.byProj, projectID)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// Close shuts the bus down: all subscriptions end and further Subscribe
// calls fail with ErrBusClosed. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	all := make([]*Subscription, 0)
	for _, subs := range b.byProj {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	b.byProj = make(map[string]map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}
