package controller

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/internal/command"
	"github.com/scheerer/sparkle-lights/internal/engine"
	"github.com/scheerer/sparkle-lights/internal/logging"
	"github.com/scheerer/sparkle-lights/internal/state"
	"github.com/scheerer/sparkle-lights/internal/transport"
	"github.com/scheerer/sparkle-lights/lights"
)

var logger = logging.New("controller")

type Phase int32

const (
	Booting Phase = iota
	AwaitingNetwork
	Connecting
	Subscribing
	Running
)

func (p Phase) String() string {
	switch p {
	case Booting:
		return "booting"
	case AwaitingNetwork:
		return "awaiting_network"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Running:
		return "running"
	}
	return "unknown"
}

// Config tunes the controller. OpTimeout bounds each connect, subscribe,
// ping and publish; once it passes the watchdog is no longer fed on the
// operation's behalf.
type Config struct {
	Pixels               int
	CommandTopic         string
	DiagnosticsTopic     string
	HousekeepingInterval time.Duration
	RetryDelay           time.Duration
	OpTimeout            time.Duration
	NetworkPollInterval  time.Duration
	InboxSize            int
	BootIndicator        bool
}

// NetworkMonitor reports whether the host has a usable network link.
type NetworkMonitor interface {
	Associated(ctx context.Context) bool
}

type Store interface {
	Load() (state.Lighting, error)
	Save(l state.Lighting) error
}

// Watchdog is fed by the main loop and resets the process when it stalls.
type Watchdog interface {
	Start(ctx context.Context)
	Feed()
	Period() time.Duration
}

// Deps are the collaborators the controller drives. Network, Store, Random
// and Watchdog are optional.
type Deps struct {
	Transport transport.Transport
	Bus       lights.PixelBus
	Network   NetworkMonitor
	Store     Store
	Random    engine.Source
	Watchdog  Watchdog
}

// Controller owns the lighting state and the pixel buffer. Both are only
// touched from the goroutine running Run; other goroutines see snapshots.
type Controller struct {
	config      Config
	deps        Deps
	interpreter *command.Interpreter
	engine      *engine.Engine

	lighting state.Lighting
	buf      lights.Buffer
	inbox    chan []byte

	started     time.Time
	phase       atomic.Int32
	frames      atomic.Int64
	dropped     atomic.Int64
	snapshot    atomic.Pointer[state.Lighting]
	diagnostics atomic.Pointer[Diagnostics]

	lastBusWarning time.Time
}

func New(config Config, deps Deps) *Controller {
	if config.Pixels <= 0 {
		config.Pixels = 50
	}
	if config.HousekeepingInterval <= 0 {
		config.HousekeepingInterval = 15 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = 5 * time.Second
	}
	if config.NetworkPollInterval <= 0 {
		config.NetworkPollInterval = 500 * time.Millisecond
	}
	if config.InboxSize <= 0 {
		config.InboxSize = 1
	}
	if deps.Bus == nil {
		deps.Bus = lights.Discard
	}
	if deps.Random == nil {
		deps.Random = engine.NewTimeSeededRandom()
	}
	if deps.Watchdog == nil {
		deps.Watchdog = unwatched{}
	}

	var saver command.Saver
	if deps.Store != nil {
		saver = deps.Store
	}

	c := &Controller{
		config:      config,
		deps:        deps,
		interpreter: command.NewInterpreter(saver),
		engine:      engine.New(deps.Random),
		lighting:    state.Defaults(),
		buf:         lights.NewBuffer(config.Pixels),
		inbox:       make(chan []byte, config.InboxSize),
		started:     time.Now(),
	}
	c.publishSnapshot()
	return c
}

func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Controller) setPhase(p Phase) {
	c.phase.Store(int32(p))
	logger.With(zap.Stringer("phase", p)).Info("Entering phase")
}

// Lighting returns the state as of the last processed command.
func (c *Controller) Lighting() state.Lighting {
	return *c.snapshot.Load()
}

func (c *Controller) publishSnapshot() {
	l := c.lighting
	c.snapshot.Store(&l)
}

// Enqueue hands a command to the main loop, which drains one per tick in
// arrival order. When the inbox is full the message is dropped and Enqueue
// returns false.
func (c *Controller) Enqueue(raw []byte) bool {
	msg := make([]byte, len(raw))
	copy(msg, raw)

	select {
	case c.inbox <- msg:
		return true
	default:
		c.dropped.Add(1)
		logger.With(zap.ByteString("payload", msg)).Warn("Command inbox full, dropping message")
		return false
	}
}

// Run walks the boot phases and then renders until ctx is cancelled. Every
// failure short of cancellation is logged and retried, so the returned error
// is always ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	c.setPhase(Booting)
	c.deps.Watchdog.Start(ctx)
	c.boot(ctx)
	defer c.shutdown()

	c.setPhase(AwaitingNetwork)
	c.indicate(0, lights.Color{Green: state.ColourMax})
	if err := c.awaitNetwork(ctx); err != nil {
		return err
	}

	c.setPhase(Connecting)
	c.indicate(1, lights.Color{Red: state.ColourMax, Green: state.ColourMax})
	if err := c.retry(ctx, "connect", c.deps.Transport.Connect); err != nil {
		return err
	}

	c.setPhase(Subscribing)
	c.indicate(2, lights.Color{Red: state.ColourMax})
	if err := c.retry(ctx, "subscribe", c.subscribe); err != nil {
		return err
	}

	c.buf.Clear()
	c.setPhase(Running)
	for {
		if err := c.cycle(ctx); err != nil {
			return err
		}
	}
}

func (c *Controller) boot(ctx context.Context) {
	if c.deps.Store != nil {
		l, err := c.deps.Store.Load()
		if err != nil {
			logger.With(zap.Error(err)).Warn("Using default lighting state")
		} else {
			c.lighting = l
			logger.With(zap.Any("lighting", l)).Info("Loaded lighting state")
		}
	}
	c.publishSnapshot()

	if err := c.deps.Bus.Open(ctx); err != nil {
		logger.With(zap.Error(err)).Warn("Failed to open pixel bus")
	}
}

func (c *Controller) shutdown() {
	c.buf.Clear()
	_ = c.deps.Bus.Write(c.buf)
	if err := c.deps.Bus.Close(); err != nil {
		logger.With(zap.Error(err)).Warn("Failed to close pixel bus")
	}
	if err := c.deps.Transport.Close(); err != nil {
		logger.With(zap.Error(err)).Warn("Failed to close transport")
	}
}

// indicate lights one boot progress pixel.
func (c *Controller) indicate(pixel int, color lights.Color) {
	if !c.config.BootIndicator || pixel >= len(c.buf) {
		return
	}
	c.buf[pixel] = color
	c.write()
}

func (c *Controller) subscribe(ctx context.Context) error {
	return c.deps.Transport.Subscribe(ctx, c.config.CommandTopic, func(payload []byte) {
		c.Enqueue(payload)
	})
}

func (c *Controller) awaitNetwork(ctx context.Context) error {
	if c.deps.Network == nil {
		return nil
	}
	for !c.deps.Network.Associated(ctx) {
		if err := c.pause(ctx, c.config.NetworkPollInterval); err != nil {
			return err
		}
	}
	return nil
}

// retry calls op until it succeeds, sleeping RetryDelay between attempts.
// There is no backoff and no attempt limit.
func (c *Controller) retry(ctx context.Context, what string, op func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := c.guarded(ctx, op)
		if err == nil {
			logger.With(zap.Int("attempt", attempt)).Infof("%s succeeded", what)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.With(zap.Error(err), zap.Int("attempt", attempt), zap.Duration("retryDelay", c.config.RetryDelay)).
			Warnf("%s failed, retrying", what)
		if err := c.pause(ctx, c.config.RetryDelay); err != nil {
			return err
		}
	}
}

// guarded runs a blocking network operation under OpTimeout, feeding the
// watchdog until the operation returns or the timeout passes. An operation
// that ignores its deadline starves the watchdog, which then restarts the
// process.
func (c *Controller) guarded(ctx context.Context, op func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	ticker := time.NewTicker(c.feedInterval())
	defer ticker.Stop()
	expired := opCtx.Done()
	for {
		if expired != nil {
			c.deps.Watchdog.Feed()
		}
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			expired = nil
			logger.With(zap.Duration("timeout", c.config.OpTimeout)).Warn("Network operation overran its timeout")
		case <-ticker.C:
		}
	}
}

// pause sleeps for d, feeding the watchdog at least twice per period.
func (c *Controller) pause(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	chunk := c.feedInterval()
	for {
		c.deps.Watchdog.Feed()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(min(remaining, chunk))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Controller) feedInterval() time.Duration {
	if p := c.deps.Watchdog.Period(); p > 0 {
		return max(p/2, time.Millisecond)
	}
	return 500 * time.Millisecond
}

// cycle runs ticks for one housekeeping interval, then does housekeeping.
func (c *Controller) cycle(ctx context.Context) error {
	start := time.Now()
	var frames int64
	for time.Since(start) < c.config.HousekeepingInterval {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.tick()
		frames++
		if err := c.pause(ctx, time.Duration(c.lighting.DelayMs)*time.Millisecond); err != nil {
			return err
		}
	}
	c.housekeeping(ctx, frames, time.Since(start))
	return ctx.Err()
}

// tick drains at most one command, renders one frame and writes it out, so
// a command always shows in the very next frame.
func (c *Controller) tick() {
	select {
	case raw := <-c.inbox:
		c.handle(raw)
	default:
	}

	c.engine.Tick(&c.lighting, c.buf)
	c.write()
	c.deps.Watchdog.Feed()
	c.frames.Add(1)
}

func (c *Controller) write() {
	if err := c.deps.Bus.Write(c.buf); err != nil {
		if time.Since(c.lastBusWarning) > 10*time.Second {
			logger.With(zap.Error(err)).Warn("Failed to write pixel buffer")
			c.lastBusWarning = time.Now()
		}
	}
}

func (c *Controller) handle(raw []byte) {
	out := c.interpreter.Interpret(raw, &c.lighting)
	log := logger.With(zap.ByteString("payload", raw), zap.Stringer("result", out.Result))

	switch out.Result {
	case command.Ignored:
		log.With(zap.Error(out.Err)).Info("Ignoring command")
		return
	case command.SaveRequested:
		if out.Err != nil {
			log.With(zap.Error(out.Err)).Warn("Failed to save lighting state")
		} else {
			log.Info("Saved lighting state")
		}
		return
	}

	for _, err := range out.FieldErrors {
		log.With(zap.Error(err)).Warn("Rejected field")
	}
	c.publishSnapshot()
	log.With(zap.Any("lighting", c.lighting)).Debug("Applied command")
}

type unwatched struct{}

func (unwatched) Start(context.Context) {}
func (unwatched) Feed()                 {}
func (unwatched) Period() time.Duration { return 0 }
