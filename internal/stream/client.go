package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"aquawatch/internal/model"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// keepAliveText is the application-level liveness signal the backend expects
// while a stream is open.
const keepAliveText = "ping"

// Handlers receives decoded stream events. All callbacks run on the client's
// read goroutine, in arrival order. Nil callbacks are skipped.
type Handlers struct {
	OnPrediction       func(model.Prediction)
	OnAlert            func(model.Alert)
	OnConnectionChange func(connected bool)
}

// Client maintains one logical connection to the backend event feed.
// Transport failures never escape as errors to handler code; they surface
// only through OnConnectionChange(false).
type Client struct {
	url          string
	pingInterval time.Duration
	handlers     Handlers
	logger       *slog.Logger
	dialer       *websocket.Dialer

	connected atomic.Bool

	mu   sync.Mutex
	conn *websocket.Conn
	stop chan struct{}
	once *sync.Once
	done chan struct{}
}

func NewClient(url string, pingInterval time.Duration, handlers Handlers, logger *slog.Logger) *Client {
	if pingInterval <= 0 {
		pingInterval = 5 * time.Second
	}
	return &Client{
		url:          url,
		pingInterval: pingInterval,
		handlers:     handlers,
		logger:       logger,
		dialer:       websocket.DefaultDialer,
	}
}

// Connected reports whether the stream is currently open. Pairing and other
// backend-dependent flows gate on this.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Connect opens the transport and starts the read and keep-alive loops.
// Calling Connect while a connection is live closes the old one first, so
// repeated reconnect attempts never leak tickers or duplicate handlers.
func (c *Client) Connect(ctx context.Context) error {
	c.Close()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	stop := make(chan struct{})
	once := new(sync.Once)
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.stop = stop
	c.once = once
	c.done = done
	c.mu.Unlock()

	c.setConnected(true)

	go c.keepAlive(conn, stop)
	go c.readLoop(conn, stop, once, done)
	return nil
}

// Close tears down the current connection and its keep-alive ticker
// synchronously. Safe to call repeatedly and while disconnected.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	stop := c.stop
	once := c.once
	done := c.done
	c.conn = nil
	c.stop = nil
	c.once = nil
	c.done = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	once.Do(func() { close(stop) })
	_ = conn.Close()
	if done != nil {
		<-done
	}
	c.setConnected(false)
}

func (c *Client) setConnected(v bool) {
	if c.connected.Swap(v) == v {
		return
	}
	if c.handlers.OnConnectionChange != nil {
		c.handlers.OnConnectionChange(v)
	}
}

// keepAlive sends the liveness text on a fixed interval for the life of the
// connection. The ticker is released as soon as stop closes.
func (c *Client) keepAlive(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(keepAliveText)); err != nil {
				if c.logger != nil {
					c.logger.Debug("keep-alive write failed", "err", err)
				}
				return
			}
		case <-stop:
			return
		}
	}
}

// readLoop decodes envelopes until the transport fails or Close is called.
// Malformed or unrecognized messages are dropped per-message; they never
// close the connection.
func (c *Client) readLoop(conn *websocket.Conn, stop chan struct{}, once *sync.Once, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			once.Do(func() {
				close(stop)
				if c.logger != nil {
					c.logger.Warn("stream read failed", "err", err)
				}
				c.setConnected(false)
			})
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) handleMessage(raw []byte) {
	env, err := model.DecodeEnvelope(raw)
	if err != nil {
		if c.logger != nil {
			c.logger.Debug("dropping malformed stream message", "err", err)
		}
		return
	}
	switch env.Type {
	case model.EventPrediction:
		var p model.Prediction
		if err := json.Unmarshal(env.Data, &p); err != nil {
			if c.logger != nil {
				c.logger.Debug("dropping bad prediction payload", "err", err)
			}
			return
		}
		if c.handlers.OnPrediction != nil {
			c.handlers.OnPrediction(p)
		}
	case model.EventAlert:
		var a model.Alert
		if err := json.Unmarshal(env.Data, &a); err != nil {
			if c.logger != nil {
				c.logger.Debug("dropping bad alert payload", "err", err)
			}
			return
		}
		if c.handlers.OnAlert != nil {
			c.handlers.OnAlert(a)
		}
	default:
		if c.logger != nil {
			c.logger.Debug("dropping unrecognized stream event", "type", env.Type)
		}
	}
}
