package session

import "time"

// EventType identifies an orchestrator event.
type EventType string

const (
	// EventDegraded fires exactly once per Online -> Degraded transition.
	EventDegraded EventType = "degraded"
	// EventRecovered fires once per Degraded -> Online transition.
	EventRecovered EventType = "recovered"
	// EventQueueError reports an offline-path failure (local disk). These
	// are surfaced here instead of returned so a session-end flow is never
	// aborted by them.
	EventQueueError EventType = "queue_error"
	// EventSessionSkipped reports a skip-heuristic decision.
	EventSessionSkipped EventType = "session_skipped"
)

// Event is an orchestrator notification.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	Time    time.Time `json:"time"`
}

// emit delivers an event without blocking; if nobody is draining the
// channel the event is dropped.
func (m *Manager) emit(t EventType, msg string, err error) {
	ev := Event{Type: t, Message: msg, Err: err, Time: time.Now()}
	select {
	case m.events <- ev:
	default:
	}
}

// Events returns the orchestrator's event channel. The channel is buffered;
// slow consumers lose events rather than blocking operations.
func (m *Manager) Events() <-chan Event { return m.events }
