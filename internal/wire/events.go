// Package wire defines the push-channel contract: canonical event names,
// payload shapes for both directions, and the normalization step that turns
// loosely-enveloped raw frames into strongly-typed payloads before they
// reach any business logic.
package wire

// Inbound event names (server -> client).
const (
	EventMessageNew      = "message:new"
	EventMessageRead     = "message:read"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventUserOnline      = "user:online"
	EventUserOffline     = "user:offline"
	EventConversationNew = "conversation:new"
)

// Outbound intent names (client -> server). message:read and the typing
// intents reuse the inbound names on the wire.
const (
	IntentConversationJoin = "conversation:join"
	IntentMessageRead      = EventMessageRead
	IntentTypingStart      = EventTypingStart
	IntentTypingStop       = EventTypingStop
	IntentMessageSend      = "message:send"
)

// MessageRead reports that a participant read a conversation.
type MessageRead struct {
	ConversationID int64 `json:"conversationId"`
	ReadBy         int64 `json:"readBy"`
}

// Typing is the payload of typing:start / typing:stop.
type Typing struct {
	UserID         int64 `json:"userId"`
	ConversationID int64 `json:"conversationId"`
}

// PresenceChange is the payload of user:online / user:offline.
type PresenceChange struct {
	UserID int64 `json:"userId"`
}

// JoinIntent subscribes the session to a conversation room.
type JoinIntent struct {
	ConversationID int64 `json:"conversationId"`
}

// ReadIntent signals a bulk read of a conversation.
type ReadIntent struct {
	ConversationID int64 `json:"conversationId"`
}

// TypingIntent carries the local user's typing state for a conversation.
type TypingIntent struct {
	ConversationID int64 `json:"conversationId"`
}

// SendIntent carries an outbound message. Exactly one of ConversationID or
// RecipientUserID must be set: a recipient without a conversation implicitly
// creates one server-side.
type SendIntent struct {
	ConversationID    *int64 `json:"conversationId,omitempty"`
	RecipientUserID   *int64 `json:"recipientUserId,omitempty"`
	MusicianProfileID *int64 `json:"musicianProfileId,omitempty"`
	Content           string `json:"content"`
}

// SendAck is the single acknowledgment returned for a SendIntent.
type SendAck struct {
	Success bool         `json:"success"`
	Error   string       `json:"error,omitempty"`
	Data    *SendAckData `json:"data,omitempty"`
}

// SendAckData carries the conversation id, which is newly allocated when the
// send implicitly created the conversation.
type SendAckData struct {
	ConversationID int64 `json:"conversationId"`
}
