// Package protocol defines the wire protocol between the signup form
// client and the live session.
package protocol

import (
	"time"

	"github.com/jsignup/signupkit/pkg/form"
)

// MessageType identifies the type of protocol message.
type MessageType uint8

const (
	// MsgJoin is sent when a client joins a form session.
	MsgJoin MessageType = iota
	// MsgLeave is sent when a client leaves.
	MsgLeave
	// MsgEvent is sent for user interactions.
	MsgEvent
	// MsgReply is sent as a response to a request.
	MsgReply
	// MsgDiff is sent when form state changes.
	MsgDiff
	// MsgError is sent when an error occurs.
	MsgError
	// MsgHeartbeat is sent for connection keepalive.
	MsgHeartbeat
)

// String returns a string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MsgJoin:
		return "join"
	case MsgLeave:
		return "leave"
	case MsgEvent:
		return "event"
	case MsgReply:
		return "reply"
	case MsgDiff:
		return "diff"
	case MsgError:
		return "error"
	case MsgHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Client-to-server event names.
const (
	EventInput   = "input"
	EventBlur    = "blur"
	EventCountry = "country"
	EventMode    = "mode"
	EventNext    = "next"
	EventPrev    = "prev"
	EventSubmit  = "submit"
)

// Server-to-client diff event names.
const (
	DiffField     = "field"
	DiffStep      = "step"
	DiffSubmitted = "submitted"
)

// Payload keys shared by both directions.
const (
	KeyField     = "field"
	KeyValue     = "value"
	KeyValid     = "valid"
	KeyStatus    = "status"
	KeyMessage   = "message"
	KeyFormValid = "form_valid"
	KeyStep      = "step"
	KeySteps     = "steps"
	KeyMode      = "mode"
	KeyCountryID = "country_id"
	KeyReason    = "reason"
)

// Message is one frame exchanged between client and server.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"t" msgpack:"t"`

	// Ref is a correlation ID for request/response matching.
	Ref string `json:"ref,omitempty" msgpack:"ref,omitempty"`

	// Topic is the form session this message belongs to.
	Topic string `json:"topic" msgpack:"topic"`

	// Event is the specific event name.
	Event string `json:"event,omitempty" msgpack:"event,omitempty"`

	// Payload contains the message data.
	Payload map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`

	// Timestamp when the message was created.
	Timestamp int64 `json:"ts,omitempty" msgpack:"ts,omitempty"`
}

// NewMessage creates a new message with the given parameters.
func NewMessage(msgType MessageType, topic, event string) *Message {
	return &Message{
		Type:      msgType,
		Topic:     topic,
		Event:     event,
		Payload:   make(map[string]any),
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithRef adds a reference ID to the message.
func (m *Message) WithRef(ref string) *Message {
	m.Ref = ref
	return m
}

// WithPayload sets the message payload.
func (m *Message) WithPayload(payload map[string]any) *Message {
	m.Payload = payload
	return m
}

// SetPayloadValue sets a single value in the payload.
func (m *Message) SetPayloadValue(key string, value any) *Message {
	if m.Payload == nil {
		m.Payload = make(map[string]any)
	}
	m.Payload[key] = value
	return m
}

// GetPayloadString retrieves a string value from the payload.
func (m *Message) GetPayloadString(key string) string {
	if m.Payload == nil {
		return ""
	}
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return ""
}

// GetPayloadInt retrieves an int value from the payload.
func (m *Message) GetPayloadInt(key string) int {
	if m.Payload == nil {
		return 0
	}
	switch v := m.Payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// GetPayloadBool retrieves a bool value from the payload.
func (m *Message) GetPayloadBool(key string) bool {
	if m.Payload == nil {
		return false
	}
	if v, ok := m.Payload[key].(bool); ok {
		return v
	}
	return false
}

// IsHeartbeat returns true if this is a heartbeat message.
func (m *Message) IsHeartbeat() bool {
	return m.Type == MsgHeartbeat
}

// Clone creates a copy of the message.
func (m *Message) Clone() *Message {
	clone := &Message{
		Type:      m.Type,
		Ref:       m.Ref,
		Topic:     m.Topic,
		Event:     m.Event,
		Timestamp: m.Timestamp,
	}
	if m.Payload != nil {
		clone.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			clone.Payload[k] = v
		}
	}
	return clone
}

// EventMessage creates a client interaction message.
func EventMessage(topic, event string, payload map[string]any) *Message {
	return NewMessage(MsgEvent, topic, event).WithPayload(payload)
}

// FieldDiff renders one field change as a diff message.
func FieldDiff(topic string, change form.Change) *Message {
	return NewMessage(MsgDiff, topic, DiffField).WithPayload(map[string]any{
		KeyField:     change.Field,
		KeyValue:     change.Value,
		KeyValid:     change.Valid,
		KeyStatus:    string(change.Status),
		KeyMessage:   change.Message,
		KeyFormValid: change.FormValid,
	})
}

// StepDiff renders a wizard position change as a diff message.
func StepDiff(topic string, step, steps int) *Message {
	return NewMessage(MsgDiff, topic, DiffStep).WithPayload(map[string]any{
		KeyStep:  step,
		KeySteps: steps,
	})
}

// SubmittedDiff announces a completed submission.
func SubmittedDiff(topic string) *Message {
	return NewMessage(MsgDiff, topic, DiffSubmitted)
}

// OkReply creates a successful reply to the message carrying ref.
func OkReply(ref, topic string) *Message {
	return NewMessage(MsgReply, topic, "").WithRef(ref)
}

// ErrorReply creates an error reply with a reason.
func ErrorReply(ref, topic, reason string) *Message {
	return NewMessage(MsgError, topic, "").
		WithRef(ref).
		WithPayload(map[string]any{KeyReason: reason})
}

// HeartbeatMessage creates a heartbeat frame.
func HeartbeatMessage(topic string) *Message {
	return NewMessage(MsgHeartbeat, topic, "")
}
