// Package rest implements the request/response side of the messaging
// contract: conversation list, history pages, read receipts, unread count
// and the HTTP send path. Read-path calls retry bounded on transient
// failures honoring Retry-After; write-path failures surface to the caller.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"gigline/chat-engine/internal/domain/chat"
	"gigline/chat-engine/internal/domain/retry"
	"gigline/chat-engine/internal/infrastructure/metrics"
)

// ErrUnauthorized marks a 401 on a user-data fetch. It is never retried
// locally; callers escalate it to the session layer.
var ErrUnauthorized = errors.New("rest: unauthorized")

// HTTPError carries the final response of an exhausted or non-transient
// call, unmodified.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("rest: http %d", e.StatusCode)
}

// MessagesPage is one backward page of history, normalized to ascending
// chronological order (the endpoint returns pages newest-first).
type MessagesPage struct {
	Messages   []chat.Message
	HasMore    bool
	NextCursor *int64
}

// SendMessageRequest is the JSON body of the HTTP send path.
type SendMessageRequest struct {
	ConversationID int64            `json:"conversationId"`
	Content        string           `json:"content"`
	Kind           chat.MessageKind `json:"type,omitempty"`
}

// MediaUpload is the multipart variant of the send path.
type MediaUpload struct {
	ConversationID int64
	Content        string
	Kind           chat.MessageKind
	Filename       string
	MimeType       string
	Data           []byte
}

// Client talks to the conversation REST endpoints with a bearer credential.
type Client struct {
	http    *resty.Client
	policy  retry.Policy
	breaker *gobreaker.CircuitBreaker
}

// New builds a client for the given base URL and credential.
func New(baseURL, token string, timeout time.Duration, policy retry.Policy) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "chat-rest",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 10
		},
	})

	return &Client{http: httpClient, policy: policy, breaker: breaker}
}

type conversationList struct {
	Conversations []chat.Conversation `json:"conversations"`
}

// Conversations fetches the directory summaries.
func (c *Client) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	var list conversationList
	err := c.getWithRetry(ctx, "conversations", "/conversations", nil, &list)
	if err != nil {
		return nil, err
	}
	if list.Conversations == nil {
		list.Conversations = []chat.Conversation{}
	}
	return list.Conversations, nil
}

type messagesPageBody struct {
	Messages   []chat.Message `json:"messages"`
	HasMore    bool           `json:"hasMore"`
	NextCursor *int64         `json:"nextCursor"`
}

// MessagesPage fetches one backward page. A nil cursor requests the most
// recent page.
func (c *Client) MessagesPage(ctx context.Context, conversationID int64, cursor *int64, take int) (MessagesPage, error) {
	params := map[string]string{"take": strconv.Itoa(take)}
	if cursor != nil {
		params["cursor"] = strconv.FormatInt(*cursor, 10)
	}

	var body messagesPageBody
	path := fmt.Sprintf("/conversations/%d/messages", conversationID)
	if err := c.getWithRetry(ctx, "messages", path, params, &body); err != nil {
		return MessagesPage{}, err
	}

	// Endpoint order is newest-first within a page; the ledger wants
	// ascending chronological order.
	messages := make([]chat.Message, 0, len(body.Messages))
	for i := len(body.Messages) - 1; i >= 0; i-- {
		messages = append(messages, body.Messages[i])
	}
	return MessagesPage{Messages: messages, HasMore: body.HasMore, NextCursor: body.NextCursor}, nil
}

// MarkRead acknowledges a bulk read receipt for the conversation. Write
// path: no local retry, the caller owns the retry affordance.
func (c *Client) MarkRead(ctx context.Context, conversationID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Patch(fmt.Sprintf("/conversations/%d/read", conversationID))
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return c.checkStatus(resp)
}

type unreadCountBody struct {
	Count int `json:"count"`
}

// UnreadCount fetches the server-authoritative global unread count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var body unreadCountBody
	if err := c.getWithRetry(ctx, "unread_count", "/conversations/unread/count", nil, &body); err != nil {
		return 0, err
	}
	if body.Count < 0 {
		body.Count = 0
	}
	return body.Count, nil
}

// PostMessage sends a text message over the HTTP path.
func (c *Client) PostMessage(ctx context.Context, req SendMessageRequest) (chat.Message, error) {
	var created chat.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&created).
		Post("/messages")
	if err != nil {
		return chat.Message{}, fmt.Errorf("post message: %w", err)
	}
	if err := c.checkStatus(resp); err != nil {
		return chat.Message{}, err
	}
	return created, nil
}

// PostMediaMessage sends a media message as multipart form data.
func (c *Client) PostMediaMessage(ctx context.Context, upload MediaUpload) (chat.Message, error) {
	var created chat.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", upload.Filename, bytes.NewReader(upload.Data)).
		SetFormData(map[string]string{
			"conversationId": strconv.FormatInt(upload.ConversationID, 10),
			"content":        upload.Content,
			"type":           string(upload.Kind),
			"mimeType":       upload.MimeType,
		}).
		SetResult(&created).
		Post("/messages")
	if err != nil {
		return chat.Message{}, fmt.Errorf("post media message: %w", err)
	}
	if err := c.checkStatus(resp); err != nil {
		return chat.Message{}, err
	}
	return created, nil
}

// getWithRetry executes a read-path GET with the client's retry policy. Only
// transient failures (rate limiting, network errors, 5xx) are retried; the
// final response is returned to the caller unmodified when attempts run out.
func (c *Client) getWithRetry(ctx context.Context, endpoint, path string, params map[string]string, out any) error {
	attempt := 0
	for {
		attempt++

		res, err := c.breaker.Execute(func() (any, error) {
			req := c.http.R().SetContext(ctx).SetResult(out)
			if params != nil {
				req.SetQueryParams(params)
			}
			resp, err := req.Get(path)
			if err != nil {
				return nil, err
			}
			return resp, nil
		})

		var httpErr *HTTPError
		if err == nil {
			resp := res.(*resty.Response)
			err = c.checkStatus(resp)
			if err == nil {
				return nil
			}
		}

		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return err
		}

		transient := true
		var retryAfter time.Duration
		if errors.As(err, &httpErr) {
			transient = httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
			retryAfter = httpErr.RetryAfter
		}

		if !transient || !c.policy.ShouldRetry(attempt) {
			return err
		}

		delay := c.policy.DelayFor(attempt, retryAfter)
		metrics.RESTRetriesTotal.WithLabelValues(endpoint).Inc()
		log.Warn().
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("retrying transient REST failure")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// checkStatus maps a response to the error taxonomy.
func (c *Client) checkStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code < 400:
		return nil
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return &HTTPError{
			StatusCode: code,
			Body:       resp.String(),
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
		}
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
