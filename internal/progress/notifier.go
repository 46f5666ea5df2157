// Package progress provides a session-keyed fan-out of processing
// events to a single subscriber per session.
//
// Delivery is at-least-once and best-effort: publishing to a session
// with no subscriber or with a full channel drops the event rather
// than blocking the pipeline.
package progress

import (
	"sync"
)

// EventType identifies the kind of processing event.
type EventType string

const (
	EventConnected EventType = "connected"
	EventProgress  EventType = "progress"
	EventComplete  EventType = "complete"
	EventError     EventType = "processing-error"
)

// Event is one processing update pushed to a session's subscriber.
type Event struct {
	Type       EventType `json:"type"`
	Step       int       `json:"step,omitempty"`
	TotalSteps int       `json:"totalSteps,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Notifier is a registry of per-session subscriber channels. It is
// constructed once per server instance and shared between the upload
// flow (publisher) and the SSE handler (subscriber).
type Notifier struct {
	mu       sync.Mutex
	sessions map[string]chan Event
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		sessions: make(map[string]chan Event),
	}
}

// Subscribe registers the sole subscriber for a session and returns its
// event channel. Re-subscribing with the same session id evicts the
// prior subscriber by closing its channel.
func (n *Notifier) Subscribe(sessionID string) <-chan Event {
	ch := make(chan Event, 16)

	n.mu.Lock()
	if prev, ok := n.sessions[sessionID]; ok {
		close(prev)
	}
	n.sessions[sessionID] = ch
	// Buffered and freshly created, so this cannot block; sending under
	// the lock keeps it ordered before any eviction of this channel.
	ch <- Event{Type: EventConnected}
	n.mu.Unlock()

	return ch
}

// Unsubscribe removes a session's channel. It is a no-op if the
// channel was already replaced by a newer subscriber.
func (n *Notifier) Unsubscribe(sessionID string, ch <-chan Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if current, ok := n.sessions[sessionID]; ok && current == ch {
		close(current)
		delete(n.sessions, sessionID)
	}
}

// Publish delivers an event to the session's subscriber. Events to a
// session with no subscriber, or to a subscriber that has fallen
// behind, are dropped.
func (n *Notifier) Publish(sessionID string, event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch, ok := n.sessions[sessionID]
	if !ok {
		return
	}
	// Channels are only ever closed while holding the lock, so the
	// non-blocking send cannot hit a closed channel.
	select {
	case ch <- event:
	default:
	}
}

// Step publishes a numbered progress event.
func (n *Notifier) Step(sessionID string, step, totalSteps int, message string) {
	n.Publish(sessionID, Event{
		Type:       EventProgress,
		Step:       step,
		TotalSteps: totalSteps,
		Message:    message,
	})
}

// Complete publishes the terminal success event.
func (n *Notifier) Complete(sessionID, message string) {
	n.Publish(sessionID, Event{Type: EventComplete, Message: message})
}

// Error publishes the terminal failure event.
func (n *Notifier) Error(sessionID, message string) {
	n.Publish(sessionID, Event{Type: EventError, Message: message})
}
