package events

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates session lifecycle events.
type EventType string

const (
	EventUserLoggedIn    EventType = "user_logged_in"
	EventUserLoggedOut   EventType = "user_logged_out"
	EventSessionReplaced EventType = "session_replaced"
)

// Event is emitted by the auth service after a session changes.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an id and the current time.
func NewEvent(eventType EventType, subjectID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// SessionReplacedPayload identifies the session a new login displaced. It
// carries a fingerprint, never the session id itself.
type SessionReplacedPayload struct {
	PreviousSession string `json:"previous_session"`
}

// SessionFingerprint returns a short, non-reversible tag for a session id,
// safe to log and compare.
func SessionFingerprint(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:6])
}
