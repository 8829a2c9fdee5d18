package engine

import (
	"context"
	"time"

	"gigline/chat-engine/internal/wire"
)

// InputActivity records one local keystroke in the conversation's composer.
// The first keystroke emits typing:start; every keystroke restarts the
// debounce timer, and when it expires typing:stop is emitted exactly once.
func (e *Engine) InputActivity(ctx context.Context, conversationID int64) {
	e.mu.Lock()
	prev, composing := e.selfTyping[conversationID]
	if composing {
		prev.timer.Stop()
	}
	entry := &expiringFlag{}
	entry.timer = time.AfterFunc(e.opts.TypingDebounce, func() {
		e.debounceExpired(conversationID, entry)
	})
	e.selfTyping[conversationID] = entry
	e.mu.Unlock()

	if !composing {
		e.emitIntent(ctx, wire.IntentTypingStart, conversationID)
	}
}

// debounceExpired ends the composing state when the debounce elapses. A
// stale callback whose entry was already replaced by a fresh keystroke is a
// no-op, so a renewal never triggers an early typing:stop.
func (e *Engine) debounceExpired(conversationID int64, entry *expiringFlag) {
	e.mu.Lock()
	current, ok := e.selfTyping[conversationID]
	if !ok || current != entry {
		e.mu.Unlock()
		return
	}
	delete(e.selfTyping, conversationID)
	e.mu.Unlock()

	e.emitIntent(context.Background(), wire.IntentTypingStop, conversationID)
}

// stopSelfTyping cancels the pending debounce and emits typing:stop
// immediately; used on send.
func (e *Engine) stopSelfTyping(ctx context.Context, conversationID int64) {
	e.mu.Lock()
	entry, composing := e.selfTyping[conversationID]
	if composing {
		entry.timer.Stop()
		delete(e.selfTyping, conversationID)
	}
	e.mu.Unlock()

	if composing {
		e.emitIntent(ctx, wire.IntentTypingStop, conversationID)
	}
}
