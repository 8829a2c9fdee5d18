package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gigline/chat-engine/internal/infrastructure/metrics"
	"gigline/chat-engine/internal/wire"
)

// ErrChannelClosed is returned for operations on a closed channel.
var ErrChannelClosed = errors.New("push: channel closed")

const defaultAckTimeout = 10 * time.Second

// frame is the JSON envelope exchanged on the socket. Ack replies carry the
// originating AckID with Event set to "ack".
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

const ackEvent = "ack"

// WebsocketChannel implements Channel over a reconnecting websocket.
type WebsocketChannel struct {
	url   string
	token string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	pending   map[string]chan wire.SendAck

	eventHandler EventHandler
	stateHandler StateHandler

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewWebsocketChannel builds a channel for the given endpoint and bearer
// credential.
func NewWebsocketChannel(url, token string) *WebsocketChannel {
	return &WebsocketChannel{
		url:     url,
		token:   token,
		pending: make(map[string]chan wire.SendAck),
	}
}

// SetEventHandler installs the inbound dispatcher. Must be set before Connect.
func (c *WebsocketChannel) SetEventHandler(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandler = h
}

// SetStateHandler installs the connect/disconnect observer.
func (c *WebsocketChannel) SetStateHandler(h StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandler = h
}

// Connected reports the current link state.
func (c *WebsocketChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect dials the endpoint and starts the read/reconnect loop. It returns
// once the first handshake succeeds.
func (c *WebsocketChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancelLoop = cancel
	c.loopDone = make(chan struct{})
	c.mu.Unlock()

	go c.runLoop(loopCtx)
	return nil
}

// Close tears the channel down and stops reconnecting.
func (c *WebsocketChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancelLoop
	done := c.loopDone
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client close")
	}
	if done != nil {
		<-done
	}
	return nil
}

// Emit sends a fire-and-forget intent.
func (c *WebsocketChannel) Emit(ctx context.Context, event string, payload any) error {
	return c.write(ctx, event, payload, "")
}

// EmitWithAck sends an intent and waits for its single acknowledgment.
func (c *WebsocketChannel) EmitWithAck(ctx context.Context, event string, payload any) (wire.SendAck, error) {
	ackID := uuid.NewString()
	ackCh := make(chan wire.SendAck, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wire.SendAck{}, ErrChannelClosed
	}
	c.pending[ackID] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, ackID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, event, payload, ackID); err != nil {
		return wire.SendAck{}, err
	}

	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, defaultAckTimeout)
		defer cancel()
	}

	select {
	case ack := <-ackCh:
		return ack, nil
	case <-waitCtx.Done():
		return wire.SendAck{}, fmt.Errorf("await ack for %s: %w", event, waitCtx.Err())
	}
}

func (c *WebsocketChannel) write(ctx context.Context, event string, payload any, ackID string) error {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", event, err)
		}
		data = encoded
	}
	body, err := json.Marshal(frame{Event: event, Data: data, AckID: ackID})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrChannelClosed
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

func (c *WebsocketChannel) dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	state := c.stateHandler
	c.mu.Unlock()

	if state != nil {
		state(true)
	}
	return nil
}

// runLoop reads frames until the connection drops, then reconnects with
// exponential backoff until Close is called.
func (c *WebsocketChannel) runLoop(ctx context.Context) {
	defer close(c.loopDone)

	for {
		c.readUntilError(ctx)

		c.mu.Lock()
		closed := c.closed
		c.connected = false
		state := c.stateHandler
		c.mu.Unlock()
		if state != nil {
			state(false)
		}
		if closed || ctx.Err() != nil {
			return
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = time.Second
		policy.MaxInterval = 30 * time.Second
		policy.MaxElapsedTime = 0 // retry until closed

		err := backoff.Retry(func() error {
			metrics.ChannelReconnectsTotal.Inc()
			return c.dial(ctx)
		}, backoff.WithContext(policy, ctx))
		if err != nil {
			return
		}
	}
}

func (c *WebsocketChannel) readUntilError(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	handler := c.eventHandler
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, body, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(body, &f); err != nil {
			log.Debug().Err(err).Msg("dropping undecodable push frame")
			continue
		}

		if f.Event == ackEvent && f.AckID != "" {
			var ack wire.SendAck
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				log.Debug().Err(err).Str("ack_id", f.AckID).Msg("dropping undecodable ack")
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[f.AckID]
			c.mu.Unlock()
			if ok {
				// Buffered; at most one ack per send.
				select {
				case ch <- ack:
				default:
				}
			}
			continue
		}

		if handler != nil {
			handler(f.Event, f.Data)
		}
	}
}
