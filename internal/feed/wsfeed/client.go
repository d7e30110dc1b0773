package wsfeed

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomstate/internal/feed"
	"github.com/vovakirdan/roomstate/internal/state"
)

// Client subscribes to a remote change-feed endpoint over WebSocket. Each
// room subscription holds its own connection keyed by the room topic. On
// connection loss the client reconnects with backoff, resubscribes, and emits
// EventResyncRequired so the consumer refetches the gap.
type Client struct {
	url        string
	token      string
	buffer     int
	minBackoff time.Duration
	maxBackoff time.Duration
	log        *zerolog.Logger

	pubMu   sync.Mutex
	pubConn *websocket.Conn
}

// Options configures a change-feed client.
type Options struct {
	// URL is the WebSocket endpoint of the change feed.
	URL string
	// Token is an opaque bearer credential issued by the auth collaborator.
	Token string
	// Buffer is the per-subscription event buffer.
	Buffer int
	// MinBackoff and MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// New constructs a change-feed client.
func New(opts Options, logger *zerolog.Logger) *Client {
	if opts.Buffer <= 0 {
		opts.Buffer = feed.DefaultBuffer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 15 * time.Second
	}
	return &Client{
		url:        opts.URL,
		token:      opts.Token,
		buffer:     opts.Buffer,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		log:        logger,
	}
}

// Subscribe opens the room channel and starts the receive loop. The returned
// subscription delivers events in the order the feed committed them; after
// any reconnect an EventResyncRequired is emitted before further events.
func (c *Client) Subscribe(roomID string) (*feed.Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())

	sub := feed.NewSubscription(roomID, c.buffer, cancel)

	conn, err := c.dial(ctx, roomID)
	if err != nil {
		cancel()
		return nil, err
	}

	go c.run(ctx, conn, sub)
	return sub, nil
}

func (c *Client) dial(ctx context.Context, roomID string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, c.dialOpts())
	if err != nil {
		return nil, state.Transient("dial change feed", err)
	}

	if err := wsjson.Write(dialCtx, conn, envelope{
		Type:  frameSubscribe,
		Topic: roomTopic(roomID),
	}); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, state.Transient("subscribe to room topic", err)
	}

	return conn, nil
}

func (c *Client) dialOpts() *websocket.DialOptions {
	if c.token == "" {
		return nil
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	return &websocket.DialOptions{HTTPHeader: header}
}

// run reads frames until the subscription is cancelled, reconnecting on
// transport errors.
func (c *Client) run(ctx context.Context, conn *websocket.Conn, sub *feed.Subscription) {
	defer func() {
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "unsubscribed")
		}
	}()

	for {
		err := c.readLoop(ctx, conn, sub)
		conn.Close(websocket.StatusNormalClosure, "closing")
		conn = nil

		if ctx.Err() != nil {
			return
		}
		if c.log != nil {
			c.log.Warn().Err(err).Str("room", sub.RoomID()).Msg("change feed disconnected, reconnecting")
		}

		conn = c.reconnect(ctx, sub.RoomID())
		if conn == nil {
			return
		}
		// The gap between disconnect and resubscribe is unobservable;
		// the consumer must refetch.
		sub.Deliver(state.Event{Kind: state.EventResyncRequired, RoomID: sub.RoomID()})
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, sub *feed.Subscription) error {
	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}

		switch env.Type {
		case frameHeartbeat:
			continue
		case frameEvent:
			ev, ok, err := decodeEvent(env)
			if err != nil {
				if c.log != nil {
					c.log.Warn().Err(err).Str("event", env.Event).Msg("malformed feed event, skipping")
				}
				continue
			}
			if !ok {
				continue
			}
			if ev.RoomID != sub.RoomID() {
				continue
			}
			sub.Deliver(ev)
		default:
			// Ignore unknown frame types for forward compatibility.
		}
	}
}

// Publish sends a locally originated event upstream so the feed fans it out
// to every viewer of the room. Soft-fails: a dropped typing signal is
// repaired by the next keystroke, so errors are logged, not returned.
func (c *Client) Publish(ev state.Event) {
	env, ok, err := encodeEvent(ev)
	if err != nil || !ok {
		if err != nil && c.log != nil {
			c.log.Warn().Err(err).Msg("encode outbound feed event")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if c.pubConn == nil {
		conn, _, err := websocket.Dial(ctx, c.url, c.dialOpts())
		if err != nil {
			if c.log != nil {
				c.log.Warn().Err(err).Msg("dial feed for publish")
			}
			return
		}
		c.pubConn = conn
	}

	if err := wsjson.Write(ctx, c.pubConn, env); err != nil {
		if c.log != nil {
			c.log.Warn().Err(err).Str("event", env.Event).Msg("publish feed event")
		}
		c.pubConn.Close(websocket.StatusInternalError, "publish failed")
		c.pubConn = nil
	}
}

// Close tears down the shared publish connection. Subscriptions are released
// individually via Unsubscribe.
func (c *Client) Close() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if c.pubConn != nil {
		c.pubConn.Close(websocket.StatusNormalClosure, "closing")
		c.pubConn = nil
	}
}

// reconnect dials until it succeeds or the subscription is cancelled.
func (c *Client) reconnect(ctx context.Context, roomID string) *websocket.Conn {
	backoff := c.minBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		conn, err := c.dial(ctx, roomID)
		if err == nil {
			return conn
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if c.log != nil {
			c.log.Warn().Err(err).Str("room", roomID).Dur("backoff", backoff).Msg("change feed reconnect failed")
		}

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}
