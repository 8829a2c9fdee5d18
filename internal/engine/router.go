package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"gigline/chat-engine/internal/domain/chat"
	"gigline/chat-engine/internal/infrastructure/metrics"
	"gigline/chat-engine/internal/wire"
)

// installRouter wires the dispatch table into the channel. The table is
// built once and re-installed only on connect/disconnect transitions via the
// state handler, never on store changes.
func (e *Engine) installRouter() {
	handlers := map[string]func(payload []byte){
		wire.EventMessageNew:      e.handleMessageNew,
		wire.EventMessageRead:     e.handleMessageRead,
		wire.EventTypingStart:     e.handleTypingStart,
		wire.EventTypingStop:      e.handleTypingStop,
		wire.EventUserOnline:      e.handleUserOnline,
		wire.EventUserOffline:     e.handleUserOffline,
		wire.EventConversationNew: e.handleConversationNew,
	}

	e.channel.SetEventHandler(func(event string, payload []byte) {
		handler, ok := handlers[event]
		if !ok {
			metrics.PushEventsDroppedTotal.WithLabelValues(event).Inc()
			log.Debug().Str("event", event).Msg("dropping unrecognized push event")
			return
		}
		metrics.PushEventsTotal.WithLabelValues(event).Inc()
		handler(payload)
	})

	e.channel.SetStateHandler(func(connected bool) {
		if connected {
			e.onConnected()
		} else {
			e.onDisconnected()
		}
	})
}

func (e *Engine) handleMessageNew(payload []byte) {
	m, err := wire.DecodeMessage(payload)
	if err != nil {
		e.dropMalformed(wire.EventMessageNew, err)
		return
	}

	e.mu.Lock()
	appended := e.ledger.Append(m.ConversationID, m)
	e.directory.UpsertPreview(m.ConversationID, chat.PreviewOf(m), m.CreatedAt)
	// The sender is done composing.
	if entry, ok := e.remoteTyping[chat.TypingKey{UserID: m.SenderID, ConversationID: m.ConversationID}]; ok {
		entry.timer.Stop()
		delete(e.remoteTyping, chat.TypingKey{UserID: m.SenderID, ConversationID: m.ConversationID})
	}
	e.presence.StopTyping(m.SenderID, m.ConversationID)

	fromOther := m.SenderID != e.opts.LocalUserID
	focusedHere := e.activeFocused && e.activeConversation == m.ConversationID
	qualifying := appended && fromOther && !focusedHere
	var global int
	if qualifying {
		e.unread.Increment(m.ConversationID)
		e.directory.IncrementUnread(m.ConversationID)
		global = e.unread.Global()
	}
	e.mu.Unlock()

	if qualifying {
		e.notifier.IncomingMessage(m)
		e.notifier.UnreadChanged(global)
	}
	e.notifySubscribers()
}

func (e *Engine) handleMessageRead(payload []byte) {
	mr, err := wire.DecodeMessageRead(payload)
	if err != nil {
		e.dropMalformed(wire.EventMessageRead, err)
		return
	}

	e.mu.Lock()
	e.unread.Reset(mr.ConversationID)
	e.directory.MarkRead(mr.ConversationID)
	e.ledger.MarkAllRead(mr.ConversationID)
	e.mu.Unlock()
	e.notifySubscribers()
}

func (e *Engine) handleTypingStart(payload []byte) {
	tp, err := wire.DecodeTyping(payload)
	if err != nil {
		e.dropMalformed(wire.EventTypingStart, err)
		return
	}

	key := chat.TypingKey{UserID: tp.UserID, ConversationID: tp.ConversationID}
	e.mu.Lock()
	e.presence.StartTyping(tp.UserID, tp.ConversationID)
	// Replace-on-renew expiry: the flag self-clears after the quiet period
	// unless another typing:start arrives first.
	if prev, ok := e.remoteTyping[key]; ok {
		prev.timer.Stop()
	}
	entry := &expiringFlag{}
	entry.timer = time.AfterFunc(e.opts.TypingTTL, func() {
		e.expireTyping(key, entry)
	})
	e.remoteTyping[key] = entry
	e.mu.Unlock()
	e.notifySubscribers()
}

func (e *Engine) handleTypingStop(payload []byte) {
	tp, err := wire.DecodeTyping(payload)
	if err != nil {
		e.dropMalformed(wire.EventTypingStop, err)
		return
	}

	key := chat.TypingKey{UserID: tp.UserID, ConversationID: tp.ConversationID}
	e.mu.Lock()
	if entry, ok := e.remoteTyping[key]; ok {
		entry.timer.Stop()
		delete(e.remoteTyping, key)
	}
	e.presence.StopTyping(tp.UserID, tp.ConversationID)
	e.mu.Unlock()
	e.notifySubscribers()
}

// expireTyping clears the pair's flag when its quiet period elapses. A stale
// callback whose entry was already replaced by a renewal is a no-op.
func (e *Engine) expireTyping(key chat.TypingKey, entry *expiringFlag) {
	e.mu.Lock()
	current, ok := e.remoteTyping[key]
	if !ok || current != entry {
		e.mu.Unlock()
		return
	}
	delete(e.remoteTyping, key)
	e.presence.StopTyping(key.UserID, key.ConversationID)
	e.mu.Unlock()
	e.notifySubscribers()
}

func (e *Engine) handleUserOnline(payload []byte) {
	pc, err := wire.DecodePresence(payload)
	if err != nil {
		e.dropMalformed(wire.EventUserOnline, err)
		return
	}
	e.mu.Lock()
	e.presence.SetOnline(pc.UserID)
	e.mu.Unlock()
	e.notifySubscribers()
}

func (e *Engine) handleUserOffline(payload []byte) {
	pc, err := wire.DecodePresence(payload)
	if err != nil {
		e.dropMalformed(wire.EventUserOffline, err)
		return
	}
	e.mu.Lock()
	e.presence.SetOffline(pc.UserID)
	e.mu.Unlock()
	e.notifySubscribers()
}

// handleConversationNew carries no payload; the engine cannot synthesize
// participant metadata locally, so it refreshes the whole directory.
func (e *Engine) handleConversationNew([]byte) {
	go e.refreshDirectory(context.Background())
}

// refreshDirectory refetches the conversation list, joins every room and
// retries the floating-session restore. Read path: failure keeps last-known
// state.
func (e *Engine) refreshDirectory(ctx context.Context) {
	list, err := e.api.Conversations(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("directory refresh failed, keeping last known list")
		return
	}

	e.mu.Lock()
	e.directory.ReplaceAll(list)
	ids := e.directory.IDs()
	e.mu.Unlock()

	for _, id := range ids {
		e.emitIntent(ctx, wire.IntentConversationJoin, id)
	}
	e.restoreFloatingSession()
	e.notifySubscribers()
}

func (e *Engine) dropMalformed(event string, err error) {
	metrics.PushEventsDroppedTotal.WithLabelValues(event).Inc()
	log.Warn().Err(err).Str("event", event).Msg("dropping malformed push payload")
}
