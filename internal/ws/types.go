package ws

import (
	"catcharity/internal/events"
	"catcharity/internal/models"
)

// Operation codes for WebSocket messages
type OpCode int

// ProtocolVersion is the exact server/client WS protocol version.
// Bump this only for breaking wire-contract changes.
const ProtocolVersion = 1

const (
	// DISPATCH - Events with type field
	OpDispatch OpCode = 0

	// Lifecycle ops (Server -> Client)
	OpHello OpCode = 1 // Sent on connection
)

// Event types (Server -> Client via DISPATCH)
const (
	EventMessageCreate      = "MESSAGE_CREATE"
	EventMessageReply       = "MESSAGE_REPLY"
	EventMessageReplyUpdate = "MESSAGE_REPLY_UPDATE"
	EventMessageReplyDelete = "MESSAGE_REPLY_DELETE"
)

var eventTypes = map[events.Type]string{
	events.MessageCreated:      EventMessageCreate,
	events.MessageReplied:      EventMessageReply,
	events.MessageReplyUpdated: EventMessageReplyUpdate,
	events.MessageReplyDeleted: EventMessageReplyDelete,
}

type WSMessage struct {
	Op       OpCode `json:"op"`
	Type     string `json:"t,omitempty"` // Event type (only for DISPATCH)
	Sequence int64  `json:"s,omitempty"`
	Data     any    `json:"d,omitempty"`
}

// Server -> Client payloads

type HelloPayload struct {
	ProtocolVersion int    `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	UserID          string `json:"user_id"`
	Kind            string `json:"kind"`
}

type MessageEventPayload struct {
	Message *models.Message `json:"message"`
}

// envelope is a dispatch addressed to the staff and to one public user.
type envelope struct {
	msg      *WSMessage
	senderID string
}
