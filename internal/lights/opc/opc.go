// Package opc drives a Fadecandy (or any Open Pixel Control server) from the
// controller's pixel buffer, one OPC message per frame.
package opc

import (
	"context"
	"sync"
	"time"

	"github.com/kellydunn/go-opc"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/lights"
)

var logger = logging.New("opc")

var ErrNotConnected = errors.New("opc server not connected")

type Config struct {
	Server  string
	Channel uint8
	// RetryInterval spaces reconnect attempts.
	RetryInterval time.Duration
}

// Bus never dials on the caller's goroutine. The OPC client's Connect takes
// no deadline, so a silent host would otherwise hold up the render tick.
type Bus struct {
	config Config

	mu          sync.Mutex
	client      *opc.Client
	dialing     bool
	closed      bool
	lastAttempt time.Time
	msg         *opc.Message
	msgLen      int
}

var _ lights.PixelBus = (*Bus)(nil)

func New(config Config) *Bus {
	if config.RetryInterval <= 0 {
		config.RetryInterval = time.Second
	}
	return &Bus{config: config}
}

// Open starts connecting to the OPC server in the background and returns at
// once. Until the connection is up Write returns ErrNotConnected.
func (b *Bus) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = false
	b.redial(true)
	return nil
}

// Connected reports whether frames are currently being sent.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil
}

// redial starts a dial unless one is in flight or the last attempt is more
// recent than RetryInterval. b.mu must be held.
func (b *Bus) redial(force bool) {
	if b.dialing || b.closed {
		return
	}
	if !force && time.Since(b.lastAttempt) < b.config.RetryInterval {
		return
	}
	b.dialing = true
	b.lastAttempt = time.Now()
	go b.dial()
}

func (b *Bus) dial() {
	client := opc.NewClient()
	err := client.Connect("tcp", b.config.Server)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialing = false
	log := logger.With(zap.String("server", b.config.Server), zap.Uint8("channel", b.config.Channel))
	if err != nil {
		log.With(zap.Error(err), zap.Duration("retryInterval", b.config.RetryInterval)).Warn("Failed to connect to OPC server")
		return
	}
	if b.closed {
		return
	}
	b.client = client
	log.Info("Connected to OPC server")
}

func (b *Bus) Write(buf lights.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		b.redial(false)
		return ErrNotConnected
	}

	if b.msg == nil || b.msgLen != len(buf) {
		b.msg = opc.NewMessage(b.config.Channel)
		b.msg.SetLength(uint16(len(buf) * 3))
		b.msgLen = len(buf)
	}
	for i, c := range buf {
		b.msg.SetPixelColor(i, c.Red, c.Green, c.Blue)
	}

	if err := b.client.Send(b.msg); err != nil {
		b.client = nil
		return errors.Wrapf(err, "send to opc server %s", b.config.Server)
	}
	return nil
}

// Close forgets the connection; the OPC client offers no explicit close.
// A dial still in flight is discarded when it completes.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.client = nil
	return nil
}
