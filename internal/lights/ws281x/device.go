//go:build ws281x

package ws281x

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ws2811 "github.com/rpi-ws281x/rpi-ws281x-go"
	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/lights"
)

var logger = logging.New("ws281x")

var stripTypes = map[string]int{
	"RGB": ws2811.WS2811StripRGB,
	"RBG": ws2811.WS2811StripRBG,
	"GRB": ws2811.WS2811StripGRB,
	"GBR": ws2811.WS2811StripGBR,
	"BRG": ws2811.WS2811StripBRG,
	"BGR": ws2811.WS2811StripBGR,
}

// Bus drives a WS281x strip from the Raspberry Pi PWM/DMA hardware.
type Bus struct {
	config Config

	mu  sync.Mutex
	dev *ws2811.WS2811
}

var _ lights.PixelBus = (*Bus)(nil)

func New(config Config) *Bus {
	return &Bus{config: config}
}

func (b *Bus) Open(ctx context.Context) error {
	stripType, ok := stripTypes[normalizeStripType(b.config.StripType)]
	if !ok {
		return errors.Errorf("unknown strip type %q", b.config.StripType)
	}

	opt := ws2811.DefaultOptions
	opt.Channels[0].GpioPin = b.config.Pin
	opt.Channels[0].LedCount = b.config.LedCount
	opt.Channels[0].Brightness = b.config.Brightness
	opt.Channels[0].StripeType = stripType

	dev, err := ws2811.MakeWS2811(&opt)
	if err != nil {
		return errors.Wrap(err, "make ws2811")
	}
	if err := dev.Init(); err != nil {
		return errors.Wrap(err, "init ws2811")
	}

	b.mu.Lock()
	b.dev = dev
	b.mu.Unlock()

	logger.With(zap.Int("pin", b.config.Pin), zap.Int("leds", b.config.LedCount)).Info("WS281x strip initialised")
	return nil
}

func (b *Bus) Write(buf lights.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return errors.New("ws281x strip not open")
	}
	leds := b.dev.Leds(0)
	for i := 0; i < len(buf) && i < len(leds); i++ {
		leds[i] = pack(buf[i])
	}
	return b.dev.Render()
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return nil
	}
	leds := b.dev.Leds(0)
	for i := range leds {
		leds[i] = 0
	}
	_ = b.dev.Render()
	b.dev.Fini()
	b.dev = nil
	return nil
}
