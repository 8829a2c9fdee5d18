package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"gigline/chat-engine/internal/infrastructure/metrics"
	"gigline/chat-engine/internal/wire"
)

var (
	// ErrInvalidSendTarget is a local validation failure: neither a valid
	// conversation id nor a valid recipient was given. Rejected before any
	// network call.
	ErrInvalidSendTarget = errors.New("engine: send needs a conversation or a recipient")
	// ErrEmptyMessage rejects a send with no content.
	ErrEmptyMessage = errors.New("engine: message content is empty")
)

// SendTarget addresses an outbound message: either an existing conversation
// or a recipient, in which case the server implicitly creates the
// conversation. Exactly one of ConversationID / RecipientUserID must be set.
type SendTarget struct {
	ConversationID    int64
	RecipientUserID   int64
	MusicianProfileID int64
}

func (t SendTarget) validate() error {
	hasConv := t.ConversationID > 0
	hasRecipient := t.RecipientUserID > 0
	if hasConv == hasRecipient {
		return ErrInvalidSendTarget
	}
	return nil
}

// SendMessage emits the message over the push channel and waits for its
// single acknowledgment. On success it returns the concrete conversation id,
// newly allocated when the target was a recipient. The ledger is not touched
// here: the canonical entry arrives as the server's message:new echo, so a
// send never produces a duplicate.
func (e *Engine) SendMessage(ctx context.Context, target SendTarget, content string) (int64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, ErrEmptyMessage
	}
	if err := target.validate(); err != nil {
		return 0, err
	}

	intent := wire.SendIntent{Content: content}
	if target.ConversationID > 0 {
		id := target.ConversationID
		intent.ConversationID = &id
	} else {
		recipient := target.RecipientUserID
		intent.RecipientUserID = &recipient
		if target.MusicianProfileID > 0 {
			profile := target.MusicianProfileID
			intent.MusicianProfileID = &profile
		}
	}

	// Sending ends the composing state immediately.
	if target.ConversationID > 0 {
		e.stopSelfTyping(ctx, target.ConversationID)
	}

	ack, err := e.channel.EmitWithAck(ctx, wire.IntentMessageSend, intent)
	if err != nil {
		return 0, err
	}
	if !ack.Success {
		reason := ack.Error
		if reason == "" {
			reason = "rejected"
		}
		return 0, fmt.Errorf("engine: send failed: %s", reason)
	}

	conversationID := target.ConversationID
	if ack.Data != nil && ack.Data.ConversationID > 0 {
		conversationID = ack.Data.ConversationID
	}
	metrics.MessagesSentTotal.Inc()

	// An implicit creation means the directory has no entry yet; refresh so
	// the new conversation gets participant metadata and a room subscription.
	if target.ConversationID == 0 {
		go e.refreshDirectory(context.Background())
	}
	return conversationID, nil
}

// emitIntent fires a conversation-scoped intent without waiting for a reply.
func (e *Engine) emitIntent(ctx context.Context, intent string, conversationID int64) {
	var payload any
	switch intent {
	case wire.IntentConversationJoin:
		payload = wire.JoinIntent{ConversationID: conversationID}
	case wire.IntentMessageRead:
		payload = wire.ReadIntent{ConversationID: conversationID}
	case wire.IntentTypingStart, wire.IntentTypingStop:
		payload = wire.TypingIntent{ConversationID: conversationID}
	default:
		payload = wire.JoinIntent{ConversationID: conversationID}
	}
	if err := e.channel.Emit(ctx, intent, payload); err != nil {
		log.Debug().Err(err).Str("intent", intent).Int64("conversation_id", conversationID).
			Msg("intent emit failed")
	}
}
