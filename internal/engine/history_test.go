package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gigline/chat-engine/internal/domain/chat"
	"gigline/chat-engine/internal/engine"
	"gigline/chat-engine/internal/infrastructure/rest"
	"gigline/chat-engine/internal/wire"
)

func historyMessage(id int64, content string) chat.Message {
	return chat.Message{
		ID:             id,
		ConversationID: 5,
		SenderID:       42,
		Content:        content,
		CreatedAt:      time.Unix(id, 0),
	}
}

func TestLoadInitialHistoryOnce(t *testing.T) {
	calls := 0
	cursor := int64(10)
	api := &fakeAPI{
		messagesFn: func(_ context.Context, conversationID int64, c *int64, take int) (rest.MessagesPage, error) {
			calls++
			require.Equal(t, int64(5), conversationID)
			require.Nil(t, c)
			return rest.MessagesPage{
				Messages:   []chat.Message{historyMessage(10, "a"), historyMessage(11, "b")},
				HasMore:    true,
				NextCursor: &cursor,
			}, nil
		},
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})

	require.NoError(t, f.engine.LoadInitialHistory(context.Background(), 5))
	require.NoError(t, f.engine.LoadInitialHistory(context.Background(), 5))
	require.Equal(t, 1, calls)

	msgs := f.engine.Messages(5)
	require.Len(t, msgs, 2)
	require.Equal(t, int64(10), msgs[0].ID)
	require.True(t, f.engine.HasMoreHistory(5))
}

func TestLoadOlderHistoryPrepends(t *testing.T) {
	first := int64(10)
	api := &fakeAPI{
		messagesFn: func(_ context.Context, _ int64, c *int64, _ int) (rest.MessagesPage, error) {
			if c == nil {
				return rest.MessagesPage{
					Messages:   []chat.Message{historyMessage(10, "a"), historyMessage(11, "b")},
					HasMore:    true,
					NextCursor: &first,
				}, nil
			}
			require.Equal(t, int64(10), *c)
			// The older page overlaps one already-held id; only the new ones land.
			return rest.MessagesPage{
				Messages: []chat.Message{historyMessage(8, "old"), historyMessage(9, "older"), historyMessage(10, "a")},
				HasMore:  false,
			}, nil
		},
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})

	require.NoError(t, f.engine.LoadInitialHistory(context.Background(), 5))

	inserted, err := f.engine.LoadOlderHistory(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	msgs := f.engine.Messages(5)
	require.Len(t, msgs, 4)
	require.Equal(t, int64(8), msgs[0].ID)
	require.Equal(t, int64(11), msgs[3].ID)
	require.False(t, f.engine.HasMoreHistory(5))

	// Exhausted cursor: a further call is a no-op.
	inserted, err = f.engine.LoadOlderHistory(context.Background(), 5)
	require.NoError(t, err)
	require.Zero(t, inserted)
}

func TestLoadOlderHistoryFailureKeepsCursor(t *testing.T) {
	first := int64(10)
	fail := false
	api := &fakeAPI{
		messagesFn: func(_ context.Context, _ int64, c *int64, _ int) (rest.MessagesPage, error) {
			if fail {
				return rest.MessagesPage{}, &rest.HTTPError{StatusCode: 502}
			}
			if c == nil {
				return rest.MessagesPage{
					Messages:   []chat.Message{historyMessage(10, "a")},
					HasMore:    true,
					NextCursor: &first,
				}, nil
			}
			return rest.MessagesPage{Messages: []chat.Message{historyMessage(9, "older")}, HasMore: false}, nil
		},
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})

	require.NoError(t, f.engine.LoadInitialHistory(context.Background(), 5))

	fail = true
	_, err := f.engine.LoadOlderHistory(context.Background(), 5)
	require.Error(t, err)
	require.True(t, f.engine.HasMoreHistory(5), "a failed page load must not clear hasMore")
	require.Len(t, f.engine.Messages(5), 1)

	// The retry proceeds from the unchanged cursor.
	fail = false
	inserted, err := f.engine.LoadOlderHistory(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 1, inserted)
	require.False(t, f.engine.HasMoreHistory(5))
}

func TestLiveMessageDuringInitialLoadSurvives(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		messagesFn: func(context.Context, int64, *int64, int) (rest.MessagesPage, error) {
			<-release
			return rest.MessagesPage{Messages: []chat.Message{historyMessage(10, "a")}}, nil
		},
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})
	f.start(t)

	done := make(chan error, 1)
	go func() { done <- f.engine.LoadInitialHistory(context.Background(), 5) }()

	// A push echo lands while the page fetch is suspended.
	f.channel.deliver(t, wire.EventMessageNew, msgPayload(501, 5, 42, "live", time.Now()))
	require.Len(t, f.engine.Messages(5), 1)

	close(release)
	require.NoError(t, <-done)

	msgs := f.engine.Messages(5)
	require.Len(t, msgs, 2, "a message delivered via push must appear exactly once")
	require.Equal(t, int64(10), msgs[0].ID)
	require.Equal(t, int64(501), msgs[1].ID)
}

func TestLoadInitialHistoryFailureAllowsRetry(t *testing.T) {
	fail := true
	api := &fakeAPI{
		messagesFn: func(context.Context, int64, *int64, int) (rest.MessagesPage, error) {
			if fail {
				return rest.MessagesPage{}, &rest.HTTPError{StatusCode: 500}
			}
			return rest.MessagesPage{Messages: []chat.Message{historyMessage(10, "a")}}, nil
		},
	}
	f := newFixture(t, api, engine.Options{LocalUserID: 99})

	require.Error(t, f.engine.LoadInitialHistory(context.Background(), 5))
	require.Empty(t, f.engine.Messages(5))

	fail = false
	require.NoError(t, f.engine.LoadInitialHistory(context.Background(), 5))
	require.Len(t, f.engine.Messages(5), 1)
}
