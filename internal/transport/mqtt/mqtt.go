package mqtt

import (
	"context"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/internal/transport"
)

var logger = logging.New("mqtt")

type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// Client is a transport.Transport over an MQTT broker. Reconnection is left
// to the caller: the paho client is built with auto-reconnect off so that
// connection state changes are visible through Ping.
type Client struct {
	config Config

	mu     sync.Mutex
	client paho.Client
}

var _ transport.Transport = (*Client)(nil)

func New(config Config) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = 30 * time.Second
	}
	return &Client{config: config}
}

func (c *Client) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(c.config.Broker).
		SetClientID(c.config.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetKeepAlive(c.config.KeepAlive).
		SetConnectTimeout(c.config.ConnectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.With(zap.Error(err)).Warn("MQTT connection lost")
		})
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	client := paho.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return errors.Wrapf(err, "connect to %s", c.config.Broker)
	}

	c.mu.Lock()
	old := c.client
	c.client = client
	c.mu.Unlock()
	if old != nil {
		old.Disconnect(0)
	}

	logger.With(zap.String("broker", c.config.Broker), zap.String("clientID", c.config.ClientID)).Info("Connected to MQTT broker")
	return nil
}

func (c *Client) current() (paho.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || !c.client.IsConnectionOpen() {
		return nil, transport.ErrNotConnected
	}
	return c.client, nil
}

func (c *Client) Subscribe(ctx context.Context, topic string, handler transport.Handler) error {
	client, err := c.current()
	if err != nil {
		return err
	}
	token := client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		handler(msg.Payload())
	})
	if err := wait(ctx, token); err != nil {
		return errors.Wrapf(err, "subscribe to %s", topic)
	}
	logger.With(zap.String("topic", topic)).Info("Subscribed")
	return nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	client, err := c.current()
	if err != nil {
		return err
	}
	if err := wait(ctx, client.Publish(topic, 0, false, payload)); err != nil {
		return errors.Wrapf(err, "publish to %s", topic)
	}
	return nil
}

// Ping reports whether the broker connection is open. Paho sends the MQTT
// PINGREQ itself on the keep-alive interval and drops the connection when
// the broker stops answering.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.current()
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
	return nil
}

func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
