// Package events provides the append-only event logs the registry
// components emit into. Events play the role of contract logs: every
// successful mutation records at least one, and failed operations record
// none.
package events

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is a single emitted record.
type Event struct {
	ID         string
	Type       string
	At         time.Time
	Attributes map[string]string
}

// Log is a thread-safe append-only event log.
type Log struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	events  []Event
}

// NewLog creates an empty event log with monotonic ulid ids.
func NewLog() *Log {
	return &Log{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Emit appends an event and returns it with its assigned id.
func (l *Log) Emit(typ string, at time.Time, attrs map[string]string) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{
		ID:         ulid.MustNew(ulid.Timestamp(at), l.entropy).String(),
		Type:       typ,
		At:         at,
		Attributes: attrs,
	}
	l.events = append(l.events, ev)
	return ev
}

// Events returns a copy of all emitted events in order.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsByType returns all events of the given type in order.
func (l *Log) EventsByType(typ string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
