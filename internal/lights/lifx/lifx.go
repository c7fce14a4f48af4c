package lifx

import (
	"bytes"
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cnf/structhash"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pdf/golifx"
	"github.com/pdf/golifx/common"
	"github.com/pdf/golifx/protocol"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/internal/util"
	"github.com/scheerer/sparkle-lights/lights"
)

var logger = logging.New("lifx")

const kelvin = 3500

type Config struct {
	GroupName     string
	MaxBrightness float64
	MinBrightness float64
	// Interval is both the minimum spacing between frames sent to the bulbs
	// and the transition duration of each colour change.
	Interval time.Duration
	// Algo reduces each light's share of the strip to one colour.
	Algo              util.ColorAlgo
	DiscoveryInterval time.Duration
}

// Bus renders the pixel strip onto a LIFX group by splitting it into one
// segment per bulb. Frames are handed to a render goroutine so a slow LAN
// never stalls the animation tick.
type Bus struct {
	config Config
	client *golifx.Client
	cancel context.CancelFunc

	lightsMu sync.RWMutex
	group    common.Group

	frames    chan []lights.Color
	lastFrame time.Time
}

var _ lights.PixelBus = (*Bus)(nil)

func New(config Config) *Bus {
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	if config.DiscoveryInterval <= 0 {
		config.DiscoveryInterval = 15 * time.Second
	}
	if config.Algo == nil {
		config.Algo = util.AverageColor
	}
	if config.MaxBrightness == 0 {
		config.MaxBrightness = 1
	}
	return &Bus{
		config: config,
		frames: make(chan []lights.Color, 1),
	}
}

func (b *Bus) Open(ctx context.Context) error {
	client, err := golifx.NewClient(&protocol.V2{})
	if err != nil {
		return errors.Wrap(err, "create lifx client")
	}
	b.client = client

	ctx, b.cancel = context.WithCancel(ctx)
	go b.discoverLoop(ctx)
	go b.renderLoop(ctx)
	return nil
}

func (b *Bus) discoverLoop(ctx context.Context) {
	ticker := time.NewTicker(b.config.DiscoveryInterval)
	defer ticker.Stop()

	b.client.SetDiscoveryInterval(b.config.DiscoveryInterval)

	timeout := 5 * time.Second
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	b.discover(ctxWithTimeout)
	cancel()

	for {
		select {
		case <-ticker.C:
			ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
			b.discover(ctxWithTimeout)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) discover(ctx context.Context) {
	logger.With(zap.String("group", b.config.GroupName)).Debug("LIFX discovery starting...")

	type result struct {
		group common.Group
		err   error
	}
	completed := make(chan result, 1)
	go func() {
		g, err := b.client.GetGroupByLabel(b.config.GroupName)
		completed <- result{group: g, err: err}
	}()

	select {
	case <-ctx.Done():
		logger.With(zap.Error(ctx.Err())).Warn("LIFX discovery timed out.")
	case r := <-completed:
		if r.err != nil || r.group == nil {
			logger.With(zap.Error(r.err)).Warn("Couldn't discover group.")
			return
		}
		b.lightsMu.Lock()
		found := b.group == nil
		b.group = r.group
		b.lightsMu.Unlock()
		if found {
			logger.With(zap.String("group", r.group.GetLabel())).Info("LIFX group found")
		}
	}
}

func (b *Bus) lights() []common.Light {
	b.lightsMu.RLock()
	defer b.lightsMu.RUnlock()
	if b.group == nil {
		return nil
	}

	var out []common.Light
	for _, l := range b.group.Lights() {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (b *Bus) LightCount() int {
	return len(b.lights())
}

// Write queues the frame for the render goroutine, replacing any frame it has
// not picked up yet. Frames arriving faster than Interval are dropped.
func (b *Bus) Write(buf lights.Buffer) error {
	if time.Since(b.lastFrame) < b.config.Interval {
		return nil
	}
	b.lastFrame = time.Now()

	frame := make([]lights.Color, len(buf))
	copy(frame, buf)

	select {
	case <-b.frames:
	default:
	}
	select {
	case b.frames <- frame:
	default:
	}
	return nil
}

type sentFrame struct {
	Colors []lights.Color
}

func (b *Bus) renderLoop(ctx context.Context) {
	var last []byte
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-b.frames:
			devices := b.lights()
			if len(devices) == 0 {
				continue
			}

			colors := Segment(frame, len(devices), b.config.Algo)
			hash := structhash.Md5(sentFrame{Colors: colors}, 1)
			if bytes.Equal(last, hash) {
				continue
			}
			last = hash

			for i, light := range devices {
				lifxColor := adjustColor(newLifxColor(colors[i]), b.config)
				if err := light.SetColor(lifxColor, b.config.Interval); err != nil {
					logger.With(zap.Error(err), zap.Uint64("light", light.ID())).Warn("Failed to set color for LIFX light")
				}
			}
		}
	}
}

func (b *Bus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// Segment splits pixels into n contiguous runs, as even as possible, and
// reduces each run with algo.
func Segment(pixels []lights.Color, n int, algo util.ColorAlgo) []lights.Color {
	if n <= 0 {
		return nil
	}
	out := make([]lights.Color, n)
	for i := 0; i < n; i++ {
		start := i * len(pixels) / n
		end := (i + 1) * len(pixels) / n
		out[i] = algo(pixels[start:end])
	}
	return out
}

func newLifxColor(color lights.Color) common.Color {
	c := colorful.Color{
		R: float64(color.Red) / 255,
		G: float64(color.Green) / 255,
		B: float64(color.Blue) / 255,
	}
	h, s, v := c.Hsv()

	return common.Color{
		Hue:        uint16(math.Round(h / 360 * 0xFFFF)),
		Saturation: uint16(math.Round(s * 0xFFFF)),
		Brightness: uint16(math.Round(v * 0xFFFF)),
		Kelvin:     kelvin,
	}
}

func adjustColor(color common.Color, config Config) common.Color {
	blackThreshold := 0.015 * 0xFFFF
	if color.Brightness <= uint16(blackThreshold) && color.Saturation <= uint16(blackThreshold) {
		// blackish - turn the bulb off
		return common.Color{Kelvin: kelvin}
	}

	color.Brightness = uint16(math.Min(config.MaxBrightness*0xFFFF, math.Max(config.MinBrightness*0xFFFF, float64(color.Brightness))))
	return color
}
