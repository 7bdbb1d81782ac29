package domain

import (
	"context"
	"time"
)

// MessageBroker defines the interface for message broker operations
type MessageBroker interface {
	// Publish sends a message to a specific topic/channel with a routing key
	Publish(ctx context.Context, topic string, routingKey string, message []byte) error

	// Subscribe listens for messages on a specific topic/channel and routing key
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Message, error)

	// Close closes the message broker connection
	Close() error
}

// Message represents a message received from the broker
type Message struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

// SessionEventsTopic carries SessionEvent payloads, routed by session ID.
const SessionEventsTopic = "session.events"

type SessionEventType string

const (
	TurnAppendedEvent   SessionEventType = "turn_appended"
	PendingChangedEvent SessionEventType = "pending_changed"
)

// SessionEvent describes one observable change of a conversation session.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"session_id"`
	Index     int              `json:"index,omitempty"`
	Turn      *Turn            `json:"turn,omitempty"`
	Pending   bool             `json:"pending"`
	Timestamp time.Time        `json:"timestamp"`
}

// SessionState is a point-in-time copy of a session, safe to hand to renderers.
type SessionState struct {
	ID         string `json:"id"`
	Transcript []Turn `json:"transcript"`
	Pending    bool   `json:"pending"`
	Draft      string `json:"draft"`
}
