package api

import (
	"context"
	"encoding/json"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// EventStream Interface
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EventStream is the push channel for one turn.
type EventStream interface {
	// Recv returns the next event. io.EOF indicates the channel closed.
	// A *StreamParseError means one event was malformed; the stream is
	// still usable.
	Recv(ctx context.Context) (StreamEvent, error)

	// Close releases stream resources. Safe to call more than once.
	Close() error
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Event Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EventKind is the `type` tag of a pushed event.
type EventKind string

const (
	EventMessageStart       EventKind = "message_start"
	EventMessage            EventKind = "message"
	EventPermissionRequest  EventKind = "permission_request"
	EventPermissionResponse EventKind = "permission_response"
	EventPermissionResolved EventKind = "permission_resolved"
	EventPermissionTimeout  EventKind = "permission_timeout"
	EventError              EventKind = "error"
	EventChatComplete       EventKind = "chat_complete"
)

// StreamEvent is one tagged event. Data is decoded lazily by the router
// so unknown kinds never fail the stream.
type StreamEvent struct {
	Type EventKind       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewStreamEvent builds an event from a payload value.
func NewStreamEvent(kind EventKind, payload any) StreamEvent {
	if payload == nil {
		return StreamEvent{Type: kind}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return StreamEvent{Type: kind}
	}
	return StreamEvent{Type: kind, Data: raw}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Payload Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// MessagePayload carries message_start and message events. message is a
// whole-state snapshot of the in-flight assistant turn, never a delta.
type MessagePayload struct {
	Message   string           `json:"message"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
}

// PermissionRequestPayload carries permission_request events.
type PermissionRequestPayload struct {
	RequestID string         `json:"request_id"`
	Operation string         `json:"operation"`
	Details   map[string]any `json:"details"`
}

// PermissionResolutionPayload carries permission_response,
// permission_resolved and permission_timeout events.
type PermissionResolutionPayload struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status,omitempty"`
}

// ErrorPayload carries error events.
type ErrorPayload struct {
	Message string `json:"message"`
}
