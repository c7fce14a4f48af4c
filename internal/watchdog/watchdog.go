package watchdog

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/scheerer/sparkle-lights/internal/logging"
)

var logger = logging.New("watchdog")

// ExitCode is the process status used when the watchdog forces a restart.
const ExitCode = 3

// Watchdog resets the process unless Feed was called at least once between
// consecutive firings. Its goroutine touches nothing but the fed flag.
type Watchdog struct {
	period time.Duration
	reset  func()
	fed    atomic.Bool
	fires  atomic.Int64
}

// New builds a watchdog that calls reset when a period passes without a feed.
// A nil reset exits the process with ExitCode so the service manager restarts it.
func New(period time.Duration, reset func()) *Watchdog {
	if reset == nil {
		reset = Exit
	}
	return &Watchdog{period: period, reset: reset}
}

func Exit() {
	logger.Error("Main loop stalled, forcing restart")
	_ = logger.Sync()
	os.Exit(ExitCode)
}

func (w *Watchdog) Period() time.Duration {
	return w.period
}

func (w *Watchdog) Feed() {
	w.fed.Store(true)
}

// Fires counts the expirations seen so far.
func (w *Watchdog) Fires() int64 {
	return w.fires.Load()
}

// Start arms the watchdog. Arming counts as a feed.
func (w *Watchdog) Start(ctx context.Context) {
	w.Feed()
	go w.run(ctx)
}

func (w *Watchdog) run(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if w.fed.Swap(false) {
				continue
			}
			w.fires.Add(1)
			logger.With(zap.Duration("period", w.period)).Warn("Watchdog expired without a feed")
			w.reset()
		case <-ctx.Done():
			return
		}
	}
}
