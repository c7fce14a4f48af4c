package controller

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/sparkle-lights/internal/engine"
	"github.com/scheerer/sparkle-lights/internal/state"
	"github.com/scheerer/sparkle-lights/internal/transport"
	"github.com/scheerer/sparkle-lights/internal/watchdog"
	"github.com/scheerer/sparkle-lights/lights"
)

var errBroker = errors.New("broker unreachable")

type fakeTransport struct {
	mu            sync.Mutex
	connectErrs   []error
	subscribeErrs []error
	pingErr       error
	connectDelay  time.Duration
	publishHang   chan struct{}
	publishStalls bool

	handler    transport.Handler
	topic      string
	published  map[string][][]byte
	connects   int
	subscribes int
	pings      int
	publishes  int
	closes     int
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectDelay > 0 {
		time.Sleep(f.connectDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, topic string, handler transport.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if len(f.subscribeErrs) > 0 {
		err := f.subscribeErrs[0]
		f.subscribeErrs = f.subscribeErrs[1:]
		return err
	}
	f.topic = topic
	f.handler = handler
	return nil
}

// Publish blocks on publishHang whatever its ctx says, and with publishStalls
// set it waits for ctx instead of publishing.
func (f *fakeTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if f.publishHang != nil {
		<-f.publishHang
	}
	if f.publishStalls {
		<-ctx.Done()
		f.mu.Lock()
		f.publishes++
		f.mu.Unlock()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = map[string][][]byte{}
	}
	f.published[topic] = append(f.published[topic], payload)
	return nil
}

func (f *fakeTransport) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) counts() (connects, subscribes, pings, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.subscribes, f.pings, f.closes
}

func (f *fakeTransport) stalledPublishes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.publishes
}

func (f *fakeTransport) deliver(payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h([]byte(payload))
}

func (f *fakeTransport) diagnostics(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.published[topic]...)
}

type fakeBus struct {
	mu     sync.Mutex
	frames []lights.Buffer
	opened bool
	closed bool
}

func (b *fakeBus) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = true
	return nil
}

func (b *fakeBus) Write(buf lights.Buffer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	frame := make(lights.Buffer, len(buf))
	copy(frame, buf)
	b.frames = append(b.frames, frame)
	return nil
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBus) snapshot() []lights.Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]lights.Buffer(nil), b.frames...)
}

type fakeStore struct {
	mu     sync.Mutex
	loaded state.Lighting
	err    error
	saved  []state.Lighting
}

func (s *fakeStore) Load() (state.Lighting, error) {
	return s.loaded, s.err
}

func (s *fakeStore) Save(l state.Lighting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, l)
	return nil
}

func (s *fakeStore) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type countingNetwork struct {
	calls atomic.Int32
	after int32
}

func (n *countingNetwork) Associated(ctx context.Context) bool {
	return n.calls.Add(1) > n.after
}

func testConfig() Config {
	return Config{
		Pixels:               10,
		CommandTopic:         "ledcontroller/command",
		HousekeepingInterval: 50 * time.Millisecond,
		RetryDelay:           5 * time.Millisecond,
		NetworkPollInterval:  time.Millisecond,
		InboxSize:            4,
		BootIndicator:        true,
	}
}

type running struct {
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, c *Controller) *running {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- c.Run(ctx) }()
	t.Cleanup(func() { r.stop(t) })
	return r
}

func (r *running) stop(t *testing.T) {
	r.cancel()
	select {
	case err := <-r.done:
		if err != nil {
			assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
		}
		r.done <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func waitForPhase(t *testing.T, c *Controller, p Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Phase() == p }, 5*time.Second, time.Millisecond)
}

func TestRunRetriesConnectAndSubscribe(t *testing.T) {
	tr := &fakeTransport{
		connectErrs:   []error{errBroker, errBroker},
		subscribeErrs: []error{errBroker},
	}
	c := New(testConfig(), Deps{Transport: tr, Bus: &fakeBus{}, Network: &countingNetwork{after: 3}})
	start(t, c)

	waitForPhase(t, c, Running)
	connects, subscribes, _, _ := tr.counts()
	assert.Equal(t, 3, connects)
	assert.Equal(t, 2, subscribes)
	assert.Equal(t, "ledcontroller/command", tr.topic)
}

func TestBootIndicatorShowsProgress(t *testing.T) {
	bus := &fakeBus{}
	c := New(testConfig(), Deps{Transport: &fakeTransport{}, Bus: bus})
	start(t, c)
	waitForPhase(t, c, Running)

	frames := bus.snapshot()
	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, lights.Color{Green: state.ColourMax}, frames[0][0])
	assert.Equal(t, lights.Color{Red: state.ColourMax, Green: state.ColourMax}, frames[1][1])
	assert.Equal(t, lights.Color{Red: state.ColourMax}, frames[2][2])
	assert.True(t, bus.opened)
}

func TestRunStopsOnCancelAndBlanksStrip(t *testing.T) {
	bus := &fakeBus{}
	tr := &fakeTransport{}
	c := New(testConfig(), Deps{Transport: tr, Bus: bus})
	r := start(t, c)
	waitForPhase(t, c, Running)

	r.stop(t)

	frames := bus.snapshot()
	assert.Zero(t, frames[len(frames)-1].Lit())
	assert.True(t, bus.closed)
	_, _, _, closes := tr.counts()
	assert.Equal(t, 1, closes)
}

func TestCancelDuringRetryReturns(t *testing.T) {
	tr := &fakeTransport{connectErrs: []error{errBroker, errBroker, errBroker, errBroker}}
	config := testConfig()
	config.RetryDelay = time.Hour
	c := New(config, Deps{Transport: tr})
	r := start(t, c)

	waitForPhase(t, c, Connecting)
	r.stop(t)
}

func TestCommandsReachTheLoop(t *testing.T) {
	bus := &fakeBus{}
	tr := &fakeTransport{}
	c := New(testConfig(), Deps{Transport: tr, Bus: bus, Random: engine.NewRandom(1)})
	start(t, c)
	waitForPhase(t, c, Running)

	tr.deliver("dense")
	tr.deliver("off")

	require.Eventually(t, func() bool {
		l := c.Lighting()
		return !l.LightsOn && l.Density == state.DensityMax
	}, 5*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		frames := bus.snapshot()
		return frames[len(frames)-1].Lit() == 0
	}, 5*time.Second, time.Millisecond)
}

func TestTickDrainsOneCommandInOrder(t *testing.T) {
	c := New(testConfig(), Deps{Transport: &fakeTransport{}})

	require.True(t, c.Enqueue([]byte("slower")))
	require.True(t, c.Enqueue([]byte("slower")))
	require.True(t, c.Enqueue([]byte("faster")))

	c.tick()
	assert.Equal(t, state.DelayMs+state.DelayStepMs, c.Lighting().DelayMs)
	c.tick()
	assert.Equal(t, state.DelayMs+2*state.DelayStepMs, c.Lighting().DelayMs)
	c.tick()
	assert.Equal(t, state.DelayMs+state.DelayStepMs, c.Lighting().DelayMs)
	c.tick()
	assert.Equal(t, state.DelayMs+state.DelayStepMs, c.Lighting().DelayMs)
}

func TestCommandShowsInNextFrame(t *testing.T) {
	bus := &fakeBus{}
	c := New(testConfig(), Deps{Transport: &fakeTransport{}, Bus: bus, Random: engine.NewRandom(7)})
	c.lighting.Density = state.DensityMax
	for i := 0; i < 20; i++ {
		c.tick()
	}

	c.Enqueue([]byte("off"))
	c.tick()

	frames := bus.snapshot()
	assert.Zero(t, frames[len(frames)-1].Lit())
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	config := testConfig()
	config.InboxSize = 2
	c := New(config, Deps{Transport: &fakeTransport{}})

	assert.True(t, c.Enqueue([]byte("on")))
	assert.True(t, c.Enqueue([]byte("on")))
	assert.False(t, c.Enqueue([]byte("off")))
	assert.Equal(t, int64(1), c.Diagnostics().Dropped)
}

func TestEnqueueCopiesPayload(t *testing.T) {
	c := New(testConfig(), Deps{Transport: &fakeTransport{}})
	payload := []byte("off")
	c.Enqueue(payload)
	copy(payload, "xxx")

	c.tick()
	assert.False(t, c.Lighting().LightsOn)
}

func TestBootLoadsStoredState(t *testing.T) {
	stored := state.Defaults()
	stored.Density = 60
	stored.Mode = state.Mode{Kind: state.White}

	c := New(testConfig(), Deps{Transport: &fakeTransport{}, Store: &fakeStore{loaded: stored}})
	start(t, c)
	waitForPhase(t, c, Running)

	assert.Equal(t, stored, c.Lighting())
}

func TestBootFallsBackToDefaults(t *testing.T) {
	store := &fakeStore{err: errors.Wrap(state.ErrPersistence, "missing")}
	c := New(testConfig(), Deps{Transport: &fakeTransport{}, Store: store})
	start(t, c)
	waitForPhase(t, c, Running)

	assert.Equal(t, state.Defaults(), c.Lighting())
}

func TestSaveCommandUsesStore(t *testing.T) {
	store := &fakeStore{err: errors.Wrap(state.ErrPersistence, "missing")}
	c := New(testConfig(), Deps{Transport: &fakeTransport{}, Store: store})

	c.Enqueue([]byte("save"))
	c.tick()

	assert.Equal(t, 1, store.saves())
}

func TestHousekeepingPublishesDiagnostics(t *testing.T) {
	tr := &fakeTransport{}
	config := testConfig()
	config.DiagnosticsTopic = "ledcontroller/diagnostics"
	c := New(config, Deps{Transport: tr})
	start(t, c)

	require.Eventually(t, func() bool {
		return len(tr.diagnostics(config.DiagnosticsTopic)) > 0
	}, 5*time.Second, time.Millisecond)

	var d Diagnostics
	require.NoError(t, json.Unmarshal(tr.diagnostics(config.DiagnosticsTopic)[0], &d))
	assert.False(t, d.Timestamp.IsZero())
	assert.Greater(t, d.Frames, int64(0))
	assert.Greater(t, d.FPS, 0.0)
	assert.Greater(t, d.FreeMemory, uint64(0))
	assert.True(t, d.PingOK)
	assert.Equal(t, "running", d.Phase)

	assert.Greater(t, c.Diagnostics().TotalFrames, int64(0))
}

func TestPingFailureTriggersOneReconnect(t *testing.T) {
	tr := &fakeTransport{pingErr: errBroker}
	c := New(testConfig(), Deps{Transport: tr})
	start(t, c)
	waitForPhase(t, c, Running)

	require.Eventually(t, func() bool {
		connects, subscribes, pings, _ := tr.counts()
		return pings >= 1 && connects >= 2 && subscribes >= 2
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, Running, c.Phase())
}

func TestWatchdogStaysFedThroughSlowConnects(t *testing.T) {
	var resets atomic.Int32
	wd := watchdog.New(100*time.Millisecond, func() { resets.Add(1) })
	tr := &fakeTransport{
		connectErrs:  []error{errBroker, errBroker},
		connectDelay: 300 * time.Millisecond,
	}
	config := testConfig()
	config.RetryDelay = 300 * time.Millisecond
	c := New(config, Deps{Transport: tr, Watchdog: wd})
	start(t, c)

	waitForPhase(t, c, Running)
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, resets.Load())
}

func TestHungPublishStarvesWatchdog(t *testing.T) {
	var resets atomic.Int32
	wd := watchdog.New(100*time.Millisecond, func() { resets.Add(1) })
	hang := make(chan struct{})
	tr := &fakeTransport{publishHang: hang}
	config := testConfig()
	config.DiagnosticsTopic = "ledcontroller/diagnostics"
	config.OpTimeout = 50 * time.Millisecond
	c := New(config, Deps{Transport: tr, Watchdog: wd})
	start(t, c)
	t.Cleanup(func() { close(hang) })

	require.Eventually(t, func() bool { return resets.Load() >= 1 }, 5*time.Second, 5*time.Millisecond)

	stalled := c.Diagnostics().TotalFrames
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, stalled, c.Diagnostics().TotalFrames)
}

func TestPublishOverrunDoesNotStopRendering(t *testing.T) {
	tr := &fakeTransport{publishStalls: true}
	config := testConfig()
	config.DiagnosticsTopic = "ledcontroller/diagnostics"
	config.OpTimeout = 20 * time.Millisecond
	c := New(config, Deps{Transport: tr})
	start(t, c)
	waitForPhase(t, c, Running)

	require.Eventually(t, func() bool { return tr.stalledPublishes() >= 2 }, 5*time.Second, time.Millisecond)

	before := c.Diagnostics().TotalFrames
	require.Eventually(t, func() bool {
		return c.Diagnostics().TotalFrames > before
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, Running, c.Phase())
}

func TestCancelDuringHungConnectReturns(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	tr := &hangingConnect{fakeTransport: &fakeTransport{}, hang: hang}
	c := New(testConfig(), Deps{Transport: tr})
	r := start(t, c)

	waitForPhase(t, c, Connecting)
	r.stop(t)
}

type hangingConnect struct {
	*fakeTransport
	hang chan struct{}
}

func (h *hangingConnect) Connect(ctx context.Context) error {
	<-h.hang
	return nil
}

func TestFPS(t *testing.T) {
	assert.Equal(t, 10.0, FPS(150, 15*time.Second))
	assert.Equal(t, 0.0, FPS(10, 0))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "awaiting_network", AwaitingNetwork.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
