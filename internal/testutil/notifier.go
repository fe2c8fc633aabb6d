package testutil

import (
	"context"
	"sync"
)

// SentNotification is one message handed to RecordingNotifier
type SentNotification struct {
	EventType string
	EventID   string
	Payload   interface{}
}

// RecordingNotifier stands in for the webhook portal. Sends with an event id
// seen before are dropped, the way the portal deduplicates them.
type RecordingNotifier struct {
	mu      sync.Mutex
	enabled bool
	err     error
	sent    []SentNotification
	seen    map[string]bool
}

func NewRecordingNotifier(enabled bool) *RecordingNotifier {
	return &RecordingNotifier{enabled: enabled, seen: map[string]bool{}}
}

func (n *RecordingNotifier) Enabled() bool {
	return n.enabled
}

// FailWith makes every following send return err; nil restores it
func (n *RecordingNotifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *RecordingNotifier) SendMessage(_ context.Context, eventType, eventID string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.seen[eventID] {
		return nil
	}
	n.seen[eventID] = true
	n.sent = append(n.sent, SentNotification{EventType: eventType, EventID: eventID, Payload: payload})
	return nil
}

// Sent returns every delivered notification
func (n *RecordingNotifier) Sent() []SentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentNotification(nil), n.sent...)
}
