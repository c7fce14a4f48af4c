// Package transport defines the publish/subscribe collaborator the
// controller receives commands from and publishes diagnostics to.
package transport

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotConnected is returned by operations attempted without a live connection.
var ErrNotConnected = errors.New("transport not connected")

// Handler receives one message payload. It is called from the transport's own
// goroutine and must not block.
type Handler func(payload []byte)

type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	// Ping checks the connection is still alive.
	Ping(ctx context.Context) error
	Close() error
}
