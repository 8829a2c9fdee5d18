package chat

import (
	"sort"
	"time"
)

// Directory is the ordered collection of conversation summaries, newest
// activity first. It is not safe for concurrent use on its own; the engine
// store serializes access.
type Directory struct {
	order []*Conversation
	byID  map[int64]*Conversation
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{byID: make(map[int64]*Conversation)}
}

// ReplaceAll swaps in a fresh conversation list, dropping every stale entry.
// Duplicated ids in the input keep the first occurrence.
func (d *Directory) ReplaceAll(list []Conversation) {
	d.order = d.order[:0]
	d.byID = make(map[int64]*Conversation, len(list))
	for i := range list {
		c := list[i]
		if _, ok := d.byID[c.ID]; ok {
			continue
		}
		entry := &c
		d.order = append(d.order, entry)
		d.byID[c.ID] = entry
	}
	d.resort()
}

// UpsertPreview updates the last-message preview and activity timestamp of a
// known conversation and re-sorts the directory. Unknown ids are a no-op:
// the engine cannot synthesize participant metadata locally, so a missing
// conversation is handled by a full refresh triggered elsewhere.
func (d *Directory) UpsertPreview(conversationID int64, preview Preview, at time.Time) bool {
	entry, ok := d.byID[conversationID]
	if !ok {
		return false
	}
	entry.Preview = preview
	entry.LastActivity = at
	d.resort()
	return true
}

// MarkRead zeroes the unread counter of one conversation.
func (d *Directory) MarkRead(conversationID int64) {
	if entry, ok := d.byID[conversationID]; ok {
		entry.Unread = 0
	}
}

// IncrementUnread bumps the unread counter of one conversation.
func (d *Directory) IncrementUnread(conversationID int64) {
	if entry, ok := d.byID[conversationID]; ok {
		entry.Unread++
	}
}

// Get returns a copy of the conversation with the given id.
func (d *Directory) Get(conversationID int64) (Conversation, bool) {
	entry, ok := d.byID[conversationID]
	if !ok {
		return Conversation{}, false
	}
	return *entry, true
}

// Contains reports whether the id is present.
func (d *Directory) Contains(conversationID int64) bool {
	_, ok := d.byID[conversationID]
	return ok
}

// Len returns the number of conversations.
func (d *Directory) Len() int { return len(d.order) }

// IDs returns the conversation ids in display order.
func (d *Directory) IDs() []int64 {
	ids := make([]int64, len(d.order))
	for i, c := range d.order {
		ids[i] = c.ID
	}
	return ids
}

// Snapshot returns a copy of the directory in display order.
func (d *Directory) Snapshot() []Conversation {
	out := make([]Conversation, len(d.order))
	for i, c := range d.order {
		out[i] = *c
	}
	return out
}

// resort orders by last activity descending. The sort is stable so that
// timestamp ties keep their prior relative order.
func (d *Directory) resort() {
	sort.SliceStable(d.order, func(i, j int) bool {
		return d.order[i].LastActivity.After(d.order[j].LastActivity)
	})
}
