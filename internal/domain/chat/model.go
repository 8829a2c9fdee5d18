// Package chat holds the core conversation state model for the messaging
// engine: the conversation directory, the per-conversation message ledger,
// presence/typing sets and unread accounting. Everything in this package is
// plain in-memory state; mutation is serialized by the owning engine store.
package chat

import "time"

// ParticipantKind distinguishes the two sides of a marketplace conversation.
type ParticipantKind string

const (
	ParticipantClient   ParticipantKind = "client"
	ParticipantMusician ParticipantKind = "musician"
)

// MessageKind is the payload type of a message.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageVideo MessageKind = "video"
	MessageAudio MessageKind = "audio"
)

// Valid reports whether k is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageImage, MessageVideo, MessageAudio:
		return true
	default:
		return false
	}
}

// Participant is the other party of a conversation as shown in the directory.
type Participant struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	AvatarURL         string          `json:"avatarUrl,omitempty"`
	Kind              ParticipantKind `json:"kind,omitempty"`
	MusicianProfileID *int64          `json:"musicianProfileId,omitempty"`
}

// MediaAttachment describes the stored media of a non-text message.
type MediaAttachment struct {
	Key      string `json:"key,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Message is a single ledger entry. Content may be empty for media-only
// messages. Messages are created server-side and only ever mutated locally
// to flip the read flag.
type Message struct {
	ID             int64            `json:"id"`
	ConversationID int64            `json:"conversationId"`
	SenderID       int64            `json:"senderId"`
	Content        string           `json:"content"`
	Kind           MessageKind      `json:"type,omitempty"`
	Media          *MediaAttachment `json:"media,omitempty"`
	Read           bool             `json:"isRead"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Preview is the last-message summary carried on a directory entry. Text
// previews carry only Text; structured previews also carry the message kind
// and, for media messages, the attachment descriptor.
type Preview struct {
	Text  string           `json:"text"`
	Kind  MessageKind      `json:"type,omitempty"`
	Media *MediaAttachment `json:"media,omitempty"`
}

// PreviewOf builds the directory preview for a message.
func PreviewOf(m Message) Preview {
	return Preview{Text: m.Content, Kind: m.Kind, Media: m.Media}
}

// Conversation is one directory entry: the other participant plus the
// last-activity summary and the per-conversation unread counter.
type Conversation struct {
	ID           int64       `json:"id"`
	Peer         Participant `json:"participant"`
	Preview      Preview     `json:"lastMessage"`
	LastActivity time.Time   `json:"lastActivityAt"`
	Unread       int         `json:"unreadCount"`
}

// PageCursor is the backward-pagination state of one conversation's ledger.
// A nil NextCursor means no further backward page exists.
type PageCursor struct {
	HasMore    bool   `json:"hasMore"`
	NextCursor *int64 `json:"nextCursor"`
}
