package engine

import "gigline/chat-engine/internal/domain/chat"

// Notifier receives the notification side effects of inbound traffic: the
// message sound, the floating-overlay auto-open and the tab-title badge are
// all driven from here. IncomingMessage fires exactly once per qualifying
// message regardless of duplicate delivery.
type Notifier interface {
	IncomingMessage(m chat.Message)
	UnreadChanged(global int)
	// SessionInvalid escalates an unauthorized response to the session layer.
	SessionInvalid()
}

// NopNotifier ignores every signal; used when no surface registered one.
type NopNotifier struct{}

func (NopNotifier) IncomingMessage(chat.Message) {}
func (NopNotifier) UnreadChanged(int)            {}
func (NopNotifier) SessionInvalid()              {}
