package relayclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
)

const (
	defaultReconnectInitial = 250 * time.Millisecond
	defaultReconnectMax     = 10 * time.Second
	handshakeTimeout        = 10 * time.Second
	maxEventBytes           = 8 << 20
)

var errUnexpectedFirstEvent = errors.New("relayclient: realtime stream did not confirm subscription")

// Subscribe opens the room's realtime stream. The first connection is made
// before Subscribe returns. When the stream drops it is re-dialed with
// exponential backoff and a resync event is delivered once it is live again.
func (c *Client) Subscribe(ctx context.Context, code string, handler func(collab.RemoteEvent)) (collab.Subscription, error) {
	conn, err := c.dial(ctx, code)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go c.stream(streamCtx, code, conn, handler, sub.done)
	return sub, nil
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the stream. It does not wait for an in-flight handler, which
// may itself be the caller.
func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Done is closed once the stream goroutine has exited.
func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (c *Client) stream(ctx context.Context, code string, conn *websocket.Conn, handler func(collab.RemoteEvent), done chan struct{}) {
	defer close(done)
	for {
		err := readEvents(ctx, conn, handler)
		conn.CloseNow()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("realtime stream dropped",
			zap.String("namespace", c.namespace),
			zap.String("room", code),
			zap.Error(err))

		conn, err = backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return c.dial(ctx, code)
		},
			backoff.WithBackOff(c.newBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				c.logger.Debug("realtime reconnect scheduled",
					zap.String("room", code),
					zap.Duration("next", next),
					zap.Error(err))
			}),
		)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("realtime reconnect abandoned", zap.String("room", code), zap.Error(err))
			}
			return
		}
		c.logger.Info("realtime stream restored", zap.String("namespace", c.namespace), zap.String("room", code))
		handler(collab.RemoteEvent{Type: collab.EventResync})
	}
}

func readEvents(ctx context.Context, conn *websocket.Conn, handler func(collab.RemoteEvent)) error {
	for {
		var event collab.RemoteEvent
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			return err
		}
		if event.Type == collab.EventSubscribed {
			continue
		}
		handler(event)
	}
}

// dial connects and waits for the relay's subscribed confirmation.
func (c *Client) dial(ctx context.Context, code string) (*websocket.Conn, error) {
	handshakeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, response, err := websocket.Dial(handshakeCtx, c.realtimeURL(code), &websocket.DialOptions{
		HTTPClient: c.dialHTTPClient(),
	})
	if err != nil {
		if response != nil && response.StatusCode >= http.StatusBadRequest && response.StatusCode < http.StatusInternalServerError {
			return nil, backoff.Permanent(&StatusError{StatusCode: response.StatusCode, Message: err.Error()})
		}
		return nil, fmt.Errorf("relayclient: dial realtime: %w", err)
	}
	conn.SetReadLimit(maxEventBytes)

	var first collab.RemoteEvent
	if err := wsjson.Read(handshakeCtx, conn, &first); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("relayclient: read subscription: %w", err)
	}
	if first.Type != collab.EventSubscribed {
		conn.CloseNow()
		return nil, errUnexpectedFirstEvent
	}
	return conn, nil
}

func (c *Client) realtimeURL(code string) string {
	target := c.roomURL(code, "/realtime")
	switch {
	case strings.HasPrefix(target, "https://"):
		return "wss://" + strings.TrimPrefix(target, "https://")
	case strings.HasPrefix(target, "http://"):
		return "ws://" + strings.TrimPrefix(target, "http://")
	}
	return target
}

// websocket.Dial refuses clients with a Timeout; the handshake context bounds the dial.
func (c *Client) dialHTTPClient() *http.Client {
	if c.httpClient.Timeout == 0 {
		return c.httpClient
	}
	clone := *c.httpClient
	clone.Timeout = 0
	return &clone
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.reconnectInitial
	policy.MaxInterval = c.reconnectMax
	return policy
}
