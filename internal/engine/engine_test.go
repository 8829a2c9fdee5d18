package engine_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gigline/chat-engine/internal/domain/chat"
	"gigline/chat-engine/internal/engine"
	"gigline/chat-engine/internal/infrastructure/push"
	"gigline/chat-engine/internal/infrastructure/rest"
	"gigline/chat-engine/internal/session"
	"gigline/chat-engine/internal/wire"
)

// fakeAPI implements engine.RestAPI with pluggable behavior per call.
type fakeAPI struct {
	conversationCalls atomic.Int32
	unreadCalls       atomic.Int32

	conversationsFn func(ctx context.Context) ([]chat.Conversation, error)
	messagesFn      func(ctx context.Context, conversationID int64, cursor *int64, take int) (rest.MessagesPage, error)
	markReadFn      func(ctx context.Context, conversationID int64) error
	unreadFn        func(ctx context.Context) (int, error)
}

func (f *fakeAPI) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	f.conversationCalls.Add(1)
	if f.conversationsFn != nil {
		return f.conversationsFn(ctx)
	}
	return nil, nil
}

func (f *fakeAPI) MessagesPage(ctx context.Context, conversationID int64, cursor *int64, take int) (rest.MessagesPage, error) {
	if f.messagesFn != nil {
		return f.messagesFn(ctx, conversationID, cursor, take)
	}
	return rest.MessagesPage{}, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, conversationID int64) error {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, conversationID)
	}
	return nil
}

func (f *fakeAPI) UnreadCount(ctx context.Context) (int, error) {
	f.unreadCalls.Add(1)
	if f.unreadFn != nil {
		return f.unreadFn(ctx)
	}
	return 0, nil
}

type emitted struct {
	event   string
	payload any
}

// fakeChannel is an in-memory push.Channel. deliver feeds an inbound event
// through the installed handler synchronously, like the real read loop does.
type fakeChannel struct {
	mu        sync.Mutex
	events    push.EventHandler
	state     push.StateHandler
	connected bool
	sent      []emitted
	ackFn     func(event string, payload any) (wire.SendAck, error)
}

func (c *fakeChannel) Connect(context.Context) error {
	c.mu.Lock()
	c.connected = true
	state := c.state
	c.mu.Unlock()
	if state != nil {
		state(true)
	}
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) SetEventHandler(h push.EventHandler) {
	c.mu.Lock()
	c.events = h
	c.mu.Unlock()
}

func (c *fakeChannel) SetStateHandler(h push.StateHandler) {
	c.mu.Lock()
	c.state = h
	c.mu.Unlock()
}

func (c *fakeChannel) Emit(_ context.Context, event string, payload any) error {
	c.mu.Lock()
	c.sent = append(c.sent, emitted{event: event, payload: payload})
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) EmitWithAck(_ context.Context, event string, payload any) (wire.SendAck, error) {
	c.mu.Lock()
	c.sent = append(c.sent, emitted{event: event, payload: payload})
	ackFn := c.ackFn
	c.mu.Unlock()
	if ackFn != nil {
		return ackFn(event, payload)
	}
	return wire.SendAck{Success: true}, nil
}

func (c *fakeChannel) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	c.mu.Lock()
	h := c.events
	c.mu.Unlock()
	require.NotNil(t, h, "no event handler installed")
	h(event, data)
}

func (c *fakeChannel) emittedEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, e := range c.sent {
		out[i] = e.event
	}
	return out
}

// fakeNotifier records notification side effects.
type fakeNotifier struct {
	mu             sync.Mutex
	incoming       []chat.Message
	unread         []int
	sessionInvalid bool
}

func (n *fakeNotifier) IncomingMessage(m chat.Message) {
	n.mu.Lock()
	n.incoming = append(n.incoming, m)
	n.mu.Unlock()
}

func (n *fakeNotifier) UnreadChanged(global int) {
	n.mu.Lock()
	n.unread = append(n.unread, global)
	n.mu.Unlock()
}

func (n *fakeNotifier) SessionInvalid() {
	n.mu.Lock()
	n.sessionInvalid = true
	n.mu.Unlock()
}

func (n *fakeNotifier) incomingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.incoming)
}

func (n *fakeNotifier) invalid() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionInvalid
}

type fixture struct {
	api      *fakeAPI
	channel  *fakeChannel
	notifier *fakeNotifier
	sessions *session.Store
	engine   *engine.Engine
}

func newFixture(t *testing.T, api *fakeAPI, opts engine.Options) *fixture {
	t.Helper()
	if api == nil {
		api = &fakeAPI{}
	}
	ch := &fakeChannel{}
	notifier := &fakeNotifier{}
	store := session.NewStore(filepath.Join(t.TempDir(), "chat-session.yaml"))
	e := engine.New(api, ch, store, notifier, opts)
	t.Cleanup(func() { _ = e.Teardown() })
	return &fixture{api: api, channel: ch, notifier: notifier, sessions: store, engine: e}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.Start(context.Background()))
}

func convAt(id, peerID int64, at time.Time) chat.Conversation {
	return chat.Conversation{
		ID:           id,
		Peer:         chat.Participant{ID: peerID, Name: "peer"},
		LastActivity: at,
	}
}

func msgPayload(id, conversationID, senderID int64, content string, at time.Time) map[string]any {
	return map[string]any{
		"id":             id,
		"conversationId": conversationID,
		"senderId":       senderID,
		"content":        content,
		"createdAt":      at.Format(time.RFC3339),
	}
}

func TestBootstrapAppliesDirectoryAndUnread(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{
		conversationsFn: func(context.Context) ([]chat.Conversation, error) {
			return []chat.Conversation{convAt(1, 10, now), convAt(2, 11, now.Add(time.Minute))}, nil
		},
		unreadFn: func(context.Context) (int, error) { return 4, nil },
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99, BootstrapRetryDelay: time.Millisecond})
	f.start(t)

	require.Eventually(t, func() bool {
		return len(f.engine.Conversations()) == 2 && f.engine.GlobalUnread() == 4
	}, 2*time.Second, 5*time.Millisecond)

	// Most recent activity first.
	list := f.engine.Conversations()
	require.Equal(t, int64(2), list[0].ID)

	// Every conversation room was joined.
	joins := 0
	for _, ev := range f.channel.emittedEvents() {
		if ev == wire.IntentConversationJoin {
			joins++
		}
	}
	require.Equal(t, 2, joins)
}

func TestBootstrapRetriesThenGivesUp(t *testing.T) {
	api := &fakeAPI{
		conversationsFn: func(context.Context) ([]chat.Conversation, error) {
			return nil, &rest.HTTPError{StatusCode: 503}
		},
	}
	f := newFixture(t, api, engine.Options{
		LocalUserID:          99,
		BootstrapRetryDelay:  time.Millisecond,
		BootstrapMaxAttempts: 5,
	})
	f.start(t)

	require.Eventually(t, func() bool {
		return api.conversationCalls.Load() == 5
	}, 2*time.Second, time.Millisecond)

	// The ceiling holds: no sixth attempt, directory stays empty.
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 5, api.conversationCalls.Load())
	require.Empty(t, f.engine.Conversations())
}

func TestBootstrapUnauthorizedStopsImmediately(t *testing.T) {
	api := &fakeAPI{
		conversationsFn: func(context.Context) ([]chat.Conversation, error) {
			return nil, rest.ErrUnauthorized
		},
	}
	f := newFixture(t, api, engine.Options{
		LocalUserID:          99,
		BootstrapRetryDelay:  time.Millisecond,
		BootstrapMaxAttempts: 5,
	})
	f.start(t)

	require.Eventually(t, f.notifier.invalid, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, api.conversationCalls.Load())
}

func TestFloatingSessionRestoredWhenConversationKnown(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{
		conversationsFn: func(context.Context) ([]chat.Conversation, error) {
			return []chat.Conversation{convAt(7, 10, now)}, nil
		},
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})
	require.NoError(t, f.sessions.Save(7))
	f.start(t)

	require.Eventually(t, func() bool {
		id, open := f.engine.FloatingConversation()
		return open && id == 7
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFloatingSessionStaleIDDiscarded(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{
		conversationsFn: func(context.Context) ([]chat.Conversation, error) {
			return []chat.Conversation{convAt(7, 10, now)}, nil
		},
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})
	require.NoError(t, f.sessions.Save(99))
	f.start(t)

	require.Eventually(t, func() bool {
		return len(f.engine.Conversations()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, open := f.engine.FloatingConversation()
	require.False(t, open)

	// The stale id was removed from disk, not just ignored.
	require.Eventually(t, func() bool {
		_, ok, err := f.sessions.Load()
		return err == nil && !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOpenAndCloseFloatingPersist(t *testing.T) {
	f := newFixture(t, nil, engine.Options{LocalUserID: 99})

	require.NoError(t, f.engine.OpenFloating(3))
	id, ok, err := f.sessions.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), id)

	require.NoError(t, f.engine.CloseFloating())
	_, ok, err = f.sessions.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMarkConversationReadRequiresRestSuccess(t *testing.T) {
	calls := 0
	api := &fakeAPI{
		markReadFn: func(context.Context, int64) error {
			calls++
			if calls == 1 {
				return &rest.HTTPError{StatusCode: 500}
			}
			return nil
		},
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})
	f.start(t)

	// Seed an unread message.
	f.channel.deliver(t, wire.EventMessageNew, msgPayload(1, 5, 42, "hi", time.Now()))
	require.Equal(t, 1, f.engine.ConversationUnread(5))

	// First receipt fails: counters untouched.
	require.Error(t, f.engine.MarkConversationRead(context.Background(), 5))
	require.Equal(t, 1, f.engine.ConversationUnread(5))

	// Second succeeds: the conversation counter zeroes and the read intent is
	// echoed. The global counter is reconciled separately, not decremented here.
	require.NoError(t, f.engine.MarkConversationRead(context.Background(), 5))
	require.Equal(t, 0, f.engine.ConversationUnread(5))
	require.Contains(t, f.channel.emittedEvents(), wire.IntentMessageRead)
}

func TestRefreshUnreadReplacesGlobal(t *testing.T) {
	api := &fakeAPI{
		unreadFn: func(context.Context) (int, error) { return 12, nil },
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})

	f.engine.RefreshUnread(context.Background())
	require.Equal(t, 12, f.engine.GlobalUnread())
}
