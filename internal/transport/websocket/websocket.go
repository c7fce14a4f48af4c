// Package websocket is a transport.Transport over a websocket relay. The relay
// forwards one command per text frame to every connected controller, so the
// subscription topic is implied by the URL and only used for logging.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/internal/transport"
)

var logger = logging.New("websocket")

const (
	readLimit    = 1 << 20
	pongWait     = 60 * time.Second
	writeTimeout = 5 * time.Second
)

type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
}

type Client struct {
	config Config

	mu      sync.Mutex
	conn    *websocket.Conn
	alive   bool
	writeMu sync.Mutex
}

var _ transport.Transport = (*Client)(nil)

func New(config Config) *Client {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	return &Client{config: config}
}

func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, c.config.Header)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.config.URL)
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.alive = true
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}

	logger.With(zap.String("url", c.config.URL)).Info("Connected to websocket relay")
	return nil
}

func (c *Client) current() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.alive {
		return nil, transport.ErrNotConnected
	}
	return c.conn, nil
}

func (c *Client) markDead(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.alive = false
	}
	c.mu.Unlock()
}

// Subscribe starts the read loop that hands every text frame to handler.
// The loop ends when the connection drops; Ping then reports ErrNotConnected.
func (c *Client) Subscribe(ctx context.Context, topic string, handler transport.Handler) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	go func() {
		for {
			messageType, raw, err := conn.ReadMessage()
			if err != nil {
				logger.With(zap.Error(err), zap.String("topic", topic)).Warn("Websocket read loop ended")
				c.markDead(conn)
				return
			}
			if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
				continue
			}
			handler(raw)
		}
	}()

	logger.With(zap.String("topic", topic)).Info("Subscribed")
	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.markDead(conn)
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
		c.markDead(conn)
		return errors.Wrap(err, "ping")
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.alive = false
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}
