package engine

import (
	"context"

	"gigline/chat-engine/internal/domain/chat"
)

// LoadInitialHistory installs the most recent page for a conversation. It is
// a no-op when the first page is already loaded. Concurrent loads for the
// same conversation are collapsed by the in-flight guard.
func (e *Engine) LoadInitialHistory(ctx context.Context, conversationID int64) error {
	e.mu.Lock()
	if e.ledger.Loaded(conversationID) || !e.ledger.TryBeginLoad(conversationID) {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	page, err := e.api.MessagesPage(ctx, conversationID, nil, e.opts.PageSize)

	e.mu.Lock()
	e.ledger.EndLoad(conversationID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.ledger.Replace(conversationID, page.Messages)
	e.ledger.SetCursor(conversationID, chat.PageCursor{HasMore: page.HasMore, NextCursor: page.NextCursor})
	e.mu.Unlock()

	e.notifySubscribers()
	return nil
}

// LoadOlderHistory fetches the next backward page and prepends it. It
// returns the number of messages inserted so the consuming surface can
// compensate its scroll offset by the size delta; the engine itself only
// promises stable, duplicate-free data. A failed load leaves the cursor
// untouched and is safe to retry.
func (e *Engine) LoadOlderHistory(ctx context.Context, conversationID int64) (int, error) {
	e.mu.Lock()
	cursor := e.ledger.Cursor(conversationID)
	if !cursor.HasMore || cursor.NextCursor == nil {
		e.mu.Unlock()
		return 0, nil
	}
	if !e.ledger.TryBeginLoad(conversationID) {
		// A backward load is already in flight; overlapping page requests
		// for one conversation are not allowed.
		e.mu.Unlock()
		return 0, nil
	}
	e.mu.Unlock()

	page, err := e.api.MessagesPage(ctx, conversationID, cursor.NextCursor, e.opts.PageSize)

	e.mu.Lock()
	e.ledger.EndLoad(conversationID)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	inserted := e.ledger.Prepend(conversationID, page.Messages)
	e.ledger.SetCursor(conversationID, chat.PageCursor{HasMore: page.HasMore, NextCursor: page.NextCursor})
	e.mu.Unlock()

	e.notifySubscribers()
	return inserted, nil
}
