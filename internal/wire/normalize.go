package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gigline/chat-engine/internal/domain/chat"
)

// ErrMalformedPayload marks a frame whose required numeric fields could not
// be located either at the top level or under any known wrapper key. The
// router drops such frames with a diagnostic log; they are never fatal.
var ErrMalformedPayload = errors.New("wire: malformed payload")

// The event producer's envelope has varied across backend versions: some
// deployments deliver the payload bare, others wrap it under one of these
// keys. Normalization tries the bare object first and only then descends.
var wrapperKeys = []string{"data", "message", "payload"}

// unwrap returns the object holding the payload: the raw object itself when
// it carries a numeric value for the marker field, otherwise the first
// wrapper candidate that does.
func unwrap(raw []byte, marker string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if hasNumericField(obj, marker) {
		return raw, nil
	}
	for _, key := range wrapperKeys {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		var innerObj map[string]json.RawMessage
		if err := json.Unmarshal(inner, &innerObj); err != nil {
			continue
		}
		if hasNumericField(innerObj, marker) {
			return inner, nil
		}
	}
	return nil, fmt.Errorf("%w: no numeric %q field", ErrMalformedPayload, marker)
}

func hasNumericField(obj map[string]json.RawMessage, field string) bool {
	raw, ok := obj[field]
	if !ok {
		return false
	}
	var n json.Number
	return json.Unmarshal(raw, &n) == nil
}

// rawMessage mirrors the message:new payload with a tolerant timestamp.
type rawMessage struct {
	ID             int64                 `json:"id"`
	ConversationID int64                 `json:"conversationId"`
	SenderID       int64                 `json:"senderId"`
	Content        string                `json:"content"`
	Kind           chat.MessageKind      `json:"type"`
	Media          *chat.MediaAttachment `json:"media"`
	Read           bool                  `json:"isRead"`
	CreatedAt      json.RawMessage       `json:"createdAt"`
}

// DecodeMessage normalizes a message:new frame into a chat.Message.
func DecodeMessage(raw []byte) (chat.Message, error) {
	payload, err := unwrap(raw, "id")
	if err != nil {
		return chat.Message{}, err
	}
	var rm rawMessage
	if err := json.Unmarshal(payload, &rm); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if rm.ID <= 0 || rm.ConversationID <= 0 || rm.SenderID <= 0 {
		return chat.Message{}, fmt.Errorf("%w: missing required ids", ErrMalformedPayload)
	}
	// Absent or unrecognized kinds degrade to text rather than failing the
	// frame, matching the tolerant timestamp handling.
	kind := rm.Kind
	if !kind.Valid() {
		kind = chat.MessageText
	}
	return chat.Message{
		ID:             rm.ID,
		ConversationID: rm.ConversationID,
		SenderID:       rm.SenderID,
		Content:        rm.Content,
		Kind:           kind,
		Media:          rm.Media,
		Read:           rm.Read,
		CreatedAt:      parseTimestamp(rm.CreatedAt),
	}, nil
}

// DecodeMessageRead normalizes a message:read frame.
func DecodeMessageRead(raw []byte) (MessageRead, error) {
	payload, err := unwrap(raw, "conversationId")
	if err != nil {
		return MessageRead{}, err
	}
	var mr MessageRead
	if err := json.Unmarshal(payload, &mr); err != nil {
		return MessageRead{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if mr.ConversationID <= 0 {
		return MessageRead{}, fmt.Errorf("%w: missing conversationId", ErrMalformedPayload)
	}
	return mr, nil
}

// DecodeTyping normalizes a typing:start / typing:stop frame.
func DecodeTyping(raw []byte) (Typing, error) {
	payload, err := unwrap(raw, "userId")
	if err != nil {
		return Typing{}, err
	}
	var tp Typing
	if err := json.Unmarshal(payload, &tp); err != nil {
		return Typing{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if tp.UserID <= 0 || tp.ConversationID <= 0 {
		return Typing{}, fmt.Errorf("%w: missing typing ids", ErrMalformedPayload)
	}
	return tp, nil
}

// DecodePresence normalizes a user:online / user:offline frame.
func DecodePresence(raw []byte) (PresenceChange, error) {
	payload, err := unwrap(raw, "userId")
	if err != nil {
		return PresenceChange{}, err
	}
	var pc PresenceChange
	if err := json.Unmarshal(payload, &pc); err != nil {
		return PresenceChange{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if pc.UserID <= 0 {
		return PresenceChange{}, fmt.Errorf("%w: missing userId", ErrMalformedPayload)
	}
	return pc, nil
}

// parseTimestamp accepts RFC3339 strings and unix millisecond numbers, the
// two shapes observed on the wire. Anything else defaults to the zero time
// instead of failing the whole frame.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
		return time.Time{}
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}
