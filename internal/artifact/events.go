package artifact

import (
	"sync"
	"time"

	"github.com/HendryAvila/specgate/internal/catalogue"
)

// EventType names a manager event.
type EventType string

const (
	EventCandidateAdded       EventType = "candidate_added"
	EventUnrecognizedRecorded EventType = "unrecognized_recorded"
	EventConflictDetected     EventType = "conflict_detected"
	EventConflictCycled       EventType = "conflict_cycled"
	EventConflictResolved     EventType = "conflict_resolved"
	EventConflictEscalated    EventType = "conflict_escalated"
	EventNodesMoved           EventType = "nodes_moved"
	EventStateChanged         EventType = "state_changed"
)

// Event describes one committed change. Only the fields relevant to Type
// are set. Payloads are copies; subscribers may keep them.
type Event struct {
	Type     EventType        `json:"type"`
	At       time.Time        `json:"at"`
	Node     catalogue.NodeID `json:"node,omitempty"`
	Entry    *Entry           `json:"entry,omitempty"`
	Conflict *Conflict        `json:"conflict,omitempty"`
	Movement *Movement        `json:"movement,omitempty"`
	From     EngineState      `json:"from,omitempty"`
	To       EngineState      `json:"to,omitempty"`
}

// Subscriber receives events synchronously, after the operation that
// produced them has committed. It must not call back into the manager.
type Subscriber func(Event)

type subscription struct {
	id    int
	fn    Subscriber
	types map[EventType]bool
}

// bus fans events out to every subscriber in subscription order.
type bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

func (b *bus) subscribe(fn Subscriber, types ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, fn: fn}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub.id) })
	}
}

func (b *bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *bus) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, e := range events {
		for _, s := range subs {
			if s.types == nil || s.types[e.Type] {
				s.fn(e)
			}
		}
	}
}
