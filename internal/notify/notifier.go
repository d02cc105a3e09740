// Package notify delivers typed progress events to a user's connected clients.
// Delivery is best effort: Notify never blocks and never reports failure.
package notify

import (
	"time"
)

const (
	TypeConnectionEstablished = "connection_established"
	TypeQueued                = "application_queued"
	TypeStarted               = "application_started"
	TypeProgress              = "application_progress"
	TypeCompleted             = "application_completed"
	TypeFailed                = "application_failed"
	TypeCancelled             = "application_cancelled"
)

type Message struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewMessage stamps a message with the current time
func NewMessage(msgType, userID string, data map[string]any) Message {
	return Message{Type: msgType, UserID: userID, Timestamp: time.Now().UTC(), Data: data}
}

type Notifier interface {
	Notify(msg Message)
}

// Multi fans a message out to every notifier
type Multi []Notifier

func (m Multi) Notify(msg Message) {
	for _, n := range m {
		if n != nil {
			n.Notify(msg)
		}
	}
}

// Nop drops everything
type Nop struct{}

func (Nop) Notify(Message) {}

// Func adapts a function to Notifier
type Func func(Message)

func (f Func) Notify(msg Message) { f(msg) }
