package chat

// TypingKey identifies one (user, conversation) typing flag.
type TypingKey struct {
	UserID         int64
	ConversationID int64
}

// Presence tracks which users are online and who is typing where. Membership
// is toggled only by push events; the engine never infers presence locally.
// Typing expiry timers are owned by the typing coordinator; this type only
// holds the sets.
type Presence struct {
	online map[int64]struct{}
	typing map[TypingKey]struct{}
}

// NewPresence returns empty presence and typing sets.
func NewPresence() *Presence {
	return &Presence{
		online: make(map[int64]struct{}),
		typing: make(map[TypingKey]struct{}),
	}
}

// SetOnline adds the user to the online set.
func (p *Presence) SetOnline(userID int64) {
	p.online[userID] = struct{}{}
}

// SetOffline removes the user from the online set and clears any typing
// flags they held.
func (p *Presence) SetOffline(userID int64) {
	delete(p.online, userID)
	for key := range p.typing {
		if key.UserID == userID {
			delete(p.typing, key)
		}
	}
}

// IsOnline reports whether the user is in the online set.
func (p *Presence) IsOnline(userID int64) bool {
	_, ok := p.online[userID]
	return ok
}

// OnlineIDs returns the current online set.
func (p *Presence) OnlineIDs() []int64 {
	ids := make([]int64, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	return ids
}

// StartTyping records the typing flag for the pair.
func (p *Presence) StartTyping(userID, conversationID int64) {
	p.typing[TypingKey{UserID: userID, ConversationID: conversationID}] = struct{}{}
}

// StopTyping clears the typing flag for the pair.
func (p *Presence) StopTyping(userID, conversationID int64) {
	delete(p.typing, TypingKey{UserID: userID, ConversationID: conversationID})
}

// IsTyping reports whether the pair's typing flag is set.
func (p *Presence) IsTyping(userID, conversationID int64) bool {
	_, ok := p.typing[TypingKey{UserID: userID, ConversationID: conversationID}]
	return ok
}

// TypingIn returns the ids of users currently typing in the conversation.
func (p *Presence) TypingIn(conversationID int64) []int64 {
	var ids []int64
	for key := range p.typing {
		if key.ConversationID == conversationID {
			ids = append(ids, key.UserID)
		}
	}
	return ids
}
