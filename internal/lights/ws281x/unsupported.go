//go:build !ws281x

package ws281x

import (
	"context"

	"github.com/pkg/errors"

	"github.com/scheerer/sparkle-lights/lights"
)

// ErrUnsupported is returned by Open when the binary was built without the
// ws281x tag (the driver needs cgo and the rpi_ws281x C library).
var ErrUnsupported = errors.New("built without ws281x support; rebuild with -tags ws281x")

type Bus struct {
	config Config
}

var _ lights.PixelBus = (*Bus)(nil)

func New(config Config) *Bus {
	return &Bus{config: config}
}

func (b *Bus) Open(ctx context.Context) error {
	return ErrUnsupported
}

func (b *Bus) Write(buf lights.Buffer) error {
	return ErrUnsupported
}

func (b *Bus) Close() error {
	return nil
}
