package workspace

import (
	"time"

	"github.com/loqalabs/voxgen/internal/history"
)

type EventType string

const (
	EventSessionCreated      EventType = "session.created"
	EventSessionUpdated      EventType = "session.updated"
	EventSessionClosed       EventType = "session.closed"
	EventSessionActivated    EventType = "session.activated"
	EventGenerationStarted   EventType = "generation.started"
	EventGenerationSucceeded EventType = "generation.succeeded"
	EventGenerationFailed    EventType = "generation.failed"
	EventHistoryAdded        EventType = "history.added"
)

// Event describes a state change. Session and Entry are copies. Seq increases by
// one per event in the order the changes were applied.
type Event struct {
	Seq       uint64         `json:"seq"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Session   *Session       `json:"session,omitempty"`
	Entry     *history.Entry `json:"entry,omitempty"`
	Error     string         `json:"error,omitempty"`
	Time      time.Time      `json:"time"`
}

// Listener receives events in Seq order after the state change they describe has
// been applied. OnEvent must not block and must not mutate the Manager.
type Listener interface {
	OnEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(evt Event) { f(evt) }
