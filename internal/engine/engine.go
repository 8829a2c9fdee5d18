// Package engine is the conversation synchronization core: one store per
// session holding the directory, ledgers, presence and unread state, fed by
// the push channel and the REST contract, consumed by any number of chat
// surfaces through named operations and snapshots.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"gigline/chat-engine/internal/domain/chat"
	"gigline/chat-engine/internal/infrastructure/push"
	"gigline/chat-engine/internal/infrastructure/rest"
	"gigline/chat-engine/internal/session"
	"gigline/chat-engine/internal/wire"
)

// RestAPI is the slice of the REST client the engine consumes.
type RestAPI interface {
	Conversations(ctx context.Context) ([]chat.Conversation, error)
	MessagesPage(ctx context.Context, conversationID int64, cursor *int64, take int) (rest.MessagesPage, error)
	MarkRead(ctx context.Context, conversationID int64) error
	UnreadCount(ctx context.Context) (int, error)
}

// Options tunes the engine. Zero values select the defaults.
type Options struct {
	LocalUserID           int64
	PageSize              int
	TypingTTL             time.Duration // remote typing flags expire after this quiet period
	TypingDebounce        time.Duration // local typing:stop is emitted after this quiet period
	BootstrapRetryDelay   time.Duration
	BootstrapMaxAttempts  int
	UnreadRefreshInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = 30
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = 2 * time.Second
	}
	if o.TypingDebounce <= 0 {
		o.TypingDebounce = 2 * time.Second
	}
	if o.BootstrapRetryDelay <= 0 {
		o.BootstrapRetryDelay = 3 * time.Second
	}
	if o.BootstrapMaxAttempts <= 0 {
		o.BootstrapMaxAttempts = 5
	}
	if o.UnreadRefreshInterval <= 0 {
		o.UnreadRefreshInterval = time.Minute
	}
}

// expiringFlag pairs a typing flag with its expiry timer. The expiry
// callback compares entry identity under the store lock: Stop returns false
// for a timer whose callback is already blocked on the lock, so a stale
// callback that lost the race against a renewal must not clear the renewed
// entry.
type expiringFlag struct {
	timer *time.Timer
}

// Engine is the single logical store for one authenticated session. All
// mutation goes through its named operations; surfaces read snapshots and
// subscribe for change notifications.
type Engine struct {
	opts     Options
	api      RestAPI
	channel  push.Channel
	sessions *session.Store
	notifier Notifier

	mu        sync.Mutex
	directory *chat.Directory
	ledger    *chat.Ledger
	presence  *chat.Presence
	unread    *chat.Unread

	// surface state
	activeConversation int64
	activeFocused      bool
	floatingOpen       bool
	floatingID         int64
	floatingRestored   bool

	// typing timers, replace-on-renew
	remoteTyping map[chat.TypingKey]*expiringFlag
	selfTyping   map[int64]*expiringFlag

	// bootstrap
	bootstrapGen  atomic.Uint64
	bootstrapped  bool
	retryCancelMu sync.Mutex
	retryCancel   context.CancelFunc

	refreshStop chan struct{}
	refreshOnce sync.Once

	subsMu  sync.Mutex
	subs    map[int]func()
	nextSub int

	closed atomic.Bool
}

// New constructs an engine. One instance per authenticated session.
func New(api RestAPI, channel push.Channel, sessions *session.Store, notifier Notifier, opts Options) *Engine {
	opts.applyDefaults()
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		opts:         opts,
		api:          api,
		channel:      channel,
		sessions:     sessions,
		notifier:     notifier,
		directory:    chat.NewDirectory(),
		ledger:       chat.NewLedger(),
		presence:     chat.NewPresence(),
		unread:       chat.NewUnread(),
		remoteTyping: make(map[chat.TypingKey]*expiringFlag),
		selfTyping:   make(map[int64]*expiringFlag),
		refreshStop:  make(chan struct{}),
		subs:         make(map[int]func()),
	}
}

// Start installs the push handlers, connects the channel and launches the
// periodic unread reconciliation. The session credential is assumed valid.
func (e *Engine) Start(ctx context.Context) error {
	e.installRouter()
	if err := e.channel.Connect(ctx); err != nil {
		return err
	}
	go e.unreadRefreshLoop()
	return nil
}

// Teardown shuts the engine down on logout: cancels any pending bootstrap
// retry, stops timers and closes the channel. The instance is not reusable.
func (e *Engine) Teardown() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.cancelBootstrapRetry()
	e.refreshOnce.Do(func() { close(e.refreshStop) })

	e.mu.Lock()
	for key, entry := range e.remoteTyping {
		entry.timer.Stop()
		delete(e.remoteTyping, key)
	}
	for id, entry := range e.selfTyping {
		entry.timer.Stop()
		delete(e.selfTyping, id)
	}
	e.mu.Unlock()

	return e.channel.Close()
}

// Subscribe registers a change callback fired after every store mutation.
// The returned function unsubscribes.
func (e *Engine) Subscribe(fn func()) func() {
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()
	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

func (e *Engine) notifySubscribers() {
	e.subsMu.Lock()
	fns := make([]func(), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subsMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ---- Surface focus ----

// SetActiveConversation records which conversation is open and whether its
// surface is focused; unread increments are suppressed for a focused
// conversation.
func (e *Engine) SetActiveConversation(conversationID int64, focused bool) {
	e.mu.Lock()
	e.activeConversation = conversationID
	e.activeFocused = focused
	e.mu.Unlock()
}

// ClearActiveConversation marks no conversation as open.
func (e *Engine) ClearActiveConversation() {
	e.mu.Lock()
	e.activeConversation = 0
	e.activeFocused = false
	e.mu.Unlock()
}

// ---- Floating session ----

// OpenFloating pins a conversation to the floating overlay and persists it.
func (e *Engine) OpenFloating(conversationID int64) error {
	e.mu.Lock()
	e.floatingOpen = true
	e.floatingID = conversationID
	e.mu.Unlock()
	e.notifySubscribers()
	return e.sessions.Save(conversationID)
}

// CloseFloating closes the overlay and clears the persisted session.
func (e *Engine) CloseFloating() error {
	e.mu.Lock()
	e.floatingOpen = false
	e.floatingID = 0
	e.mu.Unlock()
	e.notifySubscribers()
	return e.sessions.Clear()
}

// FloatingConversation returns the pinned conversation, if the overlay is open.
func (e *Engine) FloatingConversation() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.floatingID, e.floatingOpen
}

// restoreFloatingSession rehydrates the overlay from the persisted value.
// Attempted once per engine lifetime and only after the directory has data,
// so a slow bootstrap cannot cause a false "not found". A stale id is
// discarded together with the persisted value.
func (e *Engine) restoreFloatingSession() {
	e.mu.Lock()
	if e.floatingRestored || e.floatingOpen || e.directory.Len() == 0 {
		e.mu.Unlock()
		return
	}
	e.floatingRestored = true
	e.mu.Unlock()

	id, ok, err := e.sessions.Load()
	if err != nil {
		log.Warn().Err(err).Msg("floating session unreadable, skipping restore")
		return
	}
	if !ok {
		return
	}

	e.mu.Lock()
	known := e.directory.Contains(id)
	if known {
		e.floatingOpen = true
		e.floatingID = id
	}
	e.mu.Unlock()

	if !known {
		log.Debug().Int64("conversation_id", id).Msg("discarding stale floating session")
		_ = e.sessions.Clear()
		return
	}
	e.notifySubscribers()
}

// ---- Snapshots ----

// Conversations returns the directory in display order.
func (e *Engine) Conversations() []chat.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.Snapshot()
}

// Messages returns the ledger of one conversation in chronological order.
func (e *Engine) Messages(conversationID int64) []chat.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Messages(conversationID)
}

// HasMoreHistory reports whether older pages remain for the conversation.
func (e *Engine) HasMoreHistory(conversationID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Cursor(conversationID).HasMore
}

// GlobalUnread returns the badge counter.
func (e *Engine) GlobalUnread() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread.Global()
}

// ConversationUnread returns one conversation's unread counter.
func (e *Engine) ConversationUnread(conversationID int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread.Conversation(conversationID)
}

// IsOnline reports push-channel presence for a user.
func (e *Engine) IsOnline(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.IsOnline(userID)
}

// TypingIn returns the users currently typing in a conversation.
func (e *Engine) TypingIn(conversationID int64) []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.TypingIn(conversationID)
}

// ---- Read receipts ----

// MarkConversationRead performs the bulk read round trip: the REST receipt
// first, and only on success the local counters are zeroed and the read
// intent is echoed on the channel. Failures surface to the caller.
func (e *Engine) MarkConversationRead(ctx context.Context, conversationID int64) error {
	if err := e.api.MarkRead(ctx, conversationID); err != nil {
		return err
	}

	e.mu.Lock()
	e.unread.Reset(conversationID)
	e.directory.MarkRead(conversationID)
	e.ledger.MarkAllRead(conversationID)
	global := e.unread.Global()
	e.mu.Unlock()

	e.emitIntent(ctx, wire.IntentMessageRead, conversationID)
	e.notifier.UnreadChanged(global)
	e.notifySubscribers()
	return nil
}

// ---- Unread reconciliation ----

// unreadRefreshLoop periodically replaces the optimistic global counter with
// the server-authoritative count, bounding drift from surface races.
func (e *Engine) unreadRefreshLoop() {
	ticker := time.NewTicker(e.opts.UnreadRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.refreshStop:
			return
		case <-ticker.C:
			e.RefreshUnread(context.Background())
		}
	}
}

// RefreshUnread fetches the authoritative global unread count. Read-path:
// failures degrade to the last known value.
func (e *Engine) RefreshUnread(ctx context.Context) {
	count, err := e.api.UnreadCount(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("unread refresh failed, keeping last known count")
		return
	}
	e.mu.Lock()
	e.unread.SetGlobal(count)
	e.mu.Unlock()
	e.notifier.UnreadChanged(count)
	e.notifySubscribers()
}
