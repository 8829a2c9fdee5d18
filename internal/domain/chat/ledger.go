package chat

// conversationLog is the ledger slot for one conversation.
type conversationLog struct {
	messages []Message
	ids      map[int64]struct{}
	cursor   PageCursor
	loading  bool
	loaded   bool
}

// Ledger keeps the ordered message history per conversation together with
// its backward-pagination state. Lists are kept in ascending chronological
// order; callers pass batches already in ascending order (the history loader
// reverses the endpoint's newest-first pages before merging). Merging is
// idempotent by message id, so the same message arriving via a history page
// and a push event lands exactly once.
type Ledger struct {
	logs map[int64]*conversationLog
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{logs: make(map[int64]*conversationLog)}
}

func (l *Ledger) log(conversationID int64) *conversationLog {
	cl, ok := l.logs[conversationID]
	if !ok {
		cl = &conversationLog{ids: make(map[int64]struct{})}
		l.logs[conversationID] = cl
	}
	return cl
}

// Append adds a live message to the end of the conversation's list. It
// reports false when a message with the same id is already present.
func (l *Ledger) Append(conversationID int64, m Message) bool {
	cl := l.log(conversationID)
	if _, dup := cl.ids[m.ID]; dup {
		return false
	}
	cl.messages = append(cl.messages, m)
	cl.ids[m.ID] = struct{}{}
	return true
}

// Prepend inserts an older page (ascending order) at the start of the list,
// filtering out any id already present. Entries at or past the current head
// id are dropped as well: a slow page resolving after newer live events must
// not interleave out of order. Returns the number of messages inserted.
func (l *Ledger) Prepend(conversationID int64, older []Message) int {
	cl := l.log(conversationID)

	var headID int64
	if len(cl.messages) > 0 {
		headID = cl.messages[0].ID
	}

	fresh := make([]Message, 0, len(older))
	for _, m := range older {
		if _, dup := cl.ids[m.ID]; dup {
			continue
		}
		if headID != 0 && m.ID >= headID {
			continue
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}

	merged := make([]Message, 0, len(fresh)+len(cl.messages))
	merged = append(merged, fresh...)
	merged = append(merged, cl.messages...)
	cl.messages = merged
	for _, m := range fresh {
		cl.ids[m.ID] = struct{}{}
	}
	return len(fresh)
}

// Replace installs the very first page (ascending order) of a conversation.
// Messages already held that are newer than the page's newest entry are live
// events that landed while the page fetch was in flight; they are carried
// over after the page so a pushed message still appears exactly once.
// Anything at or below the page's newest id is superseded by the page.
func (l *Ledger) Replace(conversationID int64, messages []Message) {
	cl := l.log(conversationID)

	var pageMax int64
	ids := make(map[int64]struct{}, len(messages))
	for _, m := range messages {
		ids[m.ID] = struct{}{}
		if m.ID > pageMax {
			pageMax = m.ID
		}
	}

	var live []Message
	for _, m := range cl.messages {
		if m.ID <= pageMax {
			continue
		}
		if _, dup := ids[m.ID]; dup {
			continue
		}
		live = append(live, m)
		ids[m.ID] = struct{}{}
	}

	merged := make([]Message, 0, len(messages)+len(live))
	merged = append(merged, messages...)
	merged = append(merged, live...)
	cl.messages = merged
	cl.ids = ids
	cl.loaded = true
}

// MarkAllRead flips every message's read flag, mirroring a server-side bulk
// read receipt.
func (l *Ledger) MarkAllRead(conversationID int64) {
	cl, ok := l.logs[conversationID]
	if !ok {
		return
	}
	for i := range cl.messages {
		cl.messages[i].Read = true
	}
}

// Messages returns a copy of the conversation's list in chronological order.
func (l *Ledger) Messages(conversationID int64) []Message {
	cl, ok := l.logs[conversationID]
	if !ok {
		return nil
	}
	out := make([]Message, len(cl.messages))
	copy(out, cl.messages)
	return out
}

// Has reports whether the message id is present in the conversation.
func (l *Ledger) Has(conversationID, messageID int64) bool {
	cl, ok := l.logs[conversationID]
	if !ok {
		return false
	}
	_, present := cl.ids[messageID]
	return present
}

// Len returns the number of messages held for the conversation.
func (l *Ledger) Len(conversationID int64) int {
	cl, ok := l.logs[conversationID]
	if !ok {
		return 0
	}
	return len(cl.messages)
}

// Loaded reports whether the first page has been installed.
func (l *Ledger) Loaded(conversationID int64) bool {
	cl, ok := l.logs[conversationID]
	return ok && cl.loaded
}

// Cursor returns the backward-pagination state of the conversation.
func (l *Ledger) Cursor(conversationID int64) PageCursor {
	cl, ok := l.logs[conversationID]
	if !ok {
		return PageCursor{}
	}
	return cl.cursor
}

// SetCursor records the pagination state after a successful page fetch.
func (l *Ledger) SetCursor(conversationID int64, cursor PageCursor) {
	l.log(conversationID).cursor = cursor
}

// TryBeginLoad marks the conversation as having a history fetch in flight.
// It reports false when one is already running, guarding against overlapping
// backward-page requests for the same conversation.
func (l *Ledger) TryBeginLoad(conversationID int64) bool {
	cl := l.log(conversationID)
	if cl.loading {
		return false
	}
	cl.loading = true
	return true
}

// EndLoad clears the in-flight flag set by TryBeginLoad.
func (l *Ledger) EndLoad(conversationID int64) {
	if cl, ok := l.logs[conversationID]; ok {
		cl.loading = false
	}
}
