package chat

// Unread keeps the per-conversation and global unread counters. Counters are
// clamped at zero. The global counter is server-authoritative: it is bumped
// optimistically on qualifying inbound messages but reconciled by SetGlobal
// whenever the engine refetches the authoritative count, so drift from races
// between surfaces never compounds.
type Unread struct {
	perConversation map[int64]int
	global          int
}

// NewUnread returns zeroed counters.
func NewUnread() *Unread {
	return &Unread{perConversation: make(map[int64]int)}
}

// Increment bumps both the conversation's counter and the global counter.
func (u *Unread) Increment(conversationID int64) {
	u.perConversation[conversationID]++
	u.global++
}

// Reset zeroes one conversation's counter. The global counter is left for
// authoritative reconciliation rather than decremented arithmetically.
func (u *Unread) Reset(conversationID int64) {
	delete(u.perConversation, conversationID)
}

// Conversation returns the counter for one conversation.
func (u *Unread) Conversation(conversationID int64) int {
	return u.perConversation[conversationID]
}

// Global returns the global counter.
func (u *Unread) Global() int {
	return u.global
}

// SetGlobal installs the server-authoritative global count.
func (u *Unread) SetGlobal(count int) {
	if count < 0 {
		count = 0
	}
	u.global = count
}
