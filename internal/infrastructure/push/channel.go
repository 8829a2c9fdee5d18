// Package push provides the persistent, authenticated, bidirectional event
// channel the engine consumes, plus its websocket implementation. The engine
// only depends on the Channel interface; the transport is swappable.
package push

import (
	"context"

	"gigline/chat-engine/internal/wire"
)

// EventHandler receives one inbound event. Handlers are invoked from the
// channel's single read loop, so each event is handled to completion before
// the next one is dispatched.
type EventHandler func(event string, payload []byte)

// StateHandler is notified on connect/disconnect transitions.
type StateHandler func(connected bool)

// Channel is the push transport contract: an ordered, at-least-once,
// reconnecting event stream bound to the user's session.
type Channel interface {
	// Connect dials the channel and starts dispatching events. It returns
	// after the first successful handshake; reconnects are internal.
	Connect(ctx context.Context) error
	// Close tears the channel down and stops reconnecting.
	Close() error
	// Connected reports the current link state.
	Connected() bool
	// SetEventHandler installs the single inbound dispatcher. Install before
	// Connect; the set of per-event handlers behind it is owned by the router.
	SetEventHandler(h EventHandler)
	// SetStateHandler installs the connect/disconnect observer.
	SetStateHandler(h StateHandler)
	// Emit sends a fire-and-forget intent.
	Emit(ctx context.Context, event string, payload any) error
	// EmitWithAck sends an intent and waits for its single acknowledgment.
	EmitWithAck(ctx context.Context, event string, payload any) (wire.SendAck, error)
}
