package protocol

import "time"

// GenerateRequest asks the workspace to start a generation for a session.
type GenerateRequest struct {
	SessionID string `json:"session_id"`
}

// GenerateAck is the reply to a GenerateRequest sent with a reply subject.
type GenerateAck struct {
	SessionID string    `json:"session_id"`
	Accepted  bool      `json:"accepted"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectGenerateRequest = "voxgen.generate.request"
	SubjectEventPrefix     = "voxgen.event"
)

// EventSubject is the subject a workspace event of the given type is published on.
func EventSubject(eventType string) string {
	return SubjectEventPrefix + "." + eventType
}
