package controller

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Diagnostics is the snapshot taken at each housekeeping boundary and
// published to the diagnostics topic.
type Diagnostics struct {
	Timestamp     time.Time `json:"timestamp"`
	Phase         string    `json:"phase"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	FPS           float64   `json:"fps"`
	Frames        int64     `json:"frames"`
	TotalFrames   int64     `json:"total_frames"`
	FreeMemory    uint64    `json:"free_memory"`
	HeapAlloc     uint64    `json:"heap_alloc"`
	Goroutines    int       `json:"goroutines"`
	Dropped       int64     `json:"dropped_commands"`
	PingOK        bool      `json:"ping_ok"`
}

// Diagnostics returns the last housekeeping snapshot with live counters.
func (c *Controller) Diagnostics() Diagnostics {
	var d Diagnostics
	if last := c.diagnostics.Load(); last != nil {
		d = *last
	}
	d.Phase = c.Phase().String()
	d.UptimeSeconds = time.Since(c.started).Seconds()
	d.TotalFrames = c.frames.Load()
	d.Dropped = c.dropped.Load()
	return d
}

// FPS is frames*1000 over the elapsed whole milliseconds.
func FPS(frames int64, elapsed time.Duration) float64 {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return float64(frames) * 1000 / float64(ms)
}

func (c *Controller) housekeeping(ctx context.Context, frames int64, elapsed time.Duration) {
	runtime.GC()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	d := Diagnostics{
		Timestamp:     time.Now().UTC(),
		Phase:         c.Phase().String(),
		UptimeSeconds: time.Since(c.started).Seconds(),
		FPS:           FPS(frames, elapsed),
		Frames:        frames,
		TotalFrames:   c.frames.Load(),
		FreeMemory:    mem.Sys - mem.HeapAlloc,
		HeapAlloc:     mem.HeapAlloc,
		Goroutines:    runtime.NumGoroutine(),
		Dropped:       c.dropped.Load(),
	}

	if err := c.guarded(ctx, c.deps.Transport.Ping); err != nil {
		logger.With(zap.Error(err)).Warn("Keep-alive ping failed")
		d.PingOK = c.reconnect(ctx)
	} else {
		d.PingOK = true
	}
	c.diagnostics.Store(&d)

	logger.With(
		zap.Float64("fps", d.FPS),
		zap.Int64("frames", d.Frames),
		zap.Uint64("freeMemory", d.FreeMemory),
		zap.Bool("pingOK", d.PingOK)).
		Info("Housekeeping")

	if c.config.DiagnosticsTopic == "" || !d.PingOK {
		return
	}
	payload, err := json.Marshal(d)
	if err != nil {
		logger.With(zap.Error(err)).Warn("Failed to encode diagnostics")
		return
	}
	err = c.guarded(ctx, func(ctx context.Context) error {
		return c.deps.Transport.Publish(ctx, c.config.DiagnosticsTopic, payload)
	})
	if err != nil {
		logger.With(zap.Error(err)).Warn("Failed to publish diagnostics")
	}
}

// reconnect makes one attempt to restore the command subscription. Failure
// is tolerated; the next housekeeping boundary tries again.
func (c *Controller) reconnect(ctx context.Context) bool {
	_ = c.deps.Transport.Close()
	if err := c.guarded(ctx, c.deps.Transport.Connect); err != nil {
		logger.With(zap.Error(err)).Warn("Reconnect failed")
		return false
	}
	if err := c.guarded(ctx, c.subscribe); err != nil {
		logger.With(zap.Error(err)).Warn("Resubscribe failed")
		return false
	}
	logger.Info("Reconnected")
	return true
}
