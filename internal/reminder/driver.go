package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCycleInProgress is returned by RunOnce while another cycle is running.
var ErrCycleInProgress = errors.New("reminder cycle already in progress")

// Cycler runs one reminder cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (*CycleResult, error)
}

// Driver runs cycles on a fixed interval, one at a time. The enabled flag is
// read at every tick and may be flipped at runtime.
type Driver struct {
	cycler   Cycler
	interval time.Duration
	enabled  atomic.Bool
	running  sync.Mutex
	logger   *slog.Logger

	lastMu     sync.Mutex
	lastResult *CycleResult
	lastErr    error
}

// NewDriver creates a driver. Run starts it.
func NewDriver(cycler Cycler, interval time.Duration, enabled bool, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{cycler: cycler, interval: interval, logger: logger}
	d.enabled.Store(enabled)
	return d
}

// SetEnabled turns scheduled cycles on or off from the next tick onward.
func (d *Driver) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
	d.logger.Info("War reminders toggled", "enabled", enabled)
}

// Enabled reports whether scheduled cycles run.
func (d *Driver) Enabled() bool {
	return d.enabled.Load()
}

// Interval returns the tick interval.
func (d *Driver) Interval() time.Duration {
	return d.interval
}

// Run ticks until ctx is cancelled. The first tick fires immediately. Ticks
// keep their cadence regardless of how a cycle ends; a tick arriving while a
// cycle is still running is skipped.
func (d *Driver) Run(ctx context.Context) {
	d.logger.Info("War reminder driver started",
		"interval", d.interval, "enabled", d.Enabled())

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.tick(ctx)
	for {
		select {
		case <-ticker.C:
			d.tick(ctx)
		case <-ctx.Done():
			d.logger.Info("War reminder driver stopped")
			return
		}
	}
}

func (d *Driver) tick(ctx context.Context) {
	if !d.Enabled() {
		d.logger.Debug("War reminders disabled, skipping tick")
		return
	}
	if _, err := d.RunOnce(ctx); errors.Is(err, ErrCycleInProgress) {
		d.logger.Warn("Previous reminder cycle still running, skipping tick")
	}
}

// RunOnce runs a single cycle now, regardless of the enabled flag. It returns
// ErrCycleInProgress without waiting when a cycle is already running.
func (d *Driver) RunOnce(ctx context.Context) (*CycleResult, error) {
	if !d.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer d.running.Unlock()

	res, err := d.runSafely(ctx)
	if err != nil {
		d.logger.Warn("Reminder cycle failed", "error", err)
	}

	d.lastMu.Lock()
	d.lastResult, d.lastErr = res, err
	d.lastMu.Unlock()
	return res, err
}

// Last returns the outcome of the most recent cycle, if any.
func (d *Driver) Last() (*CycleResult, error) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	return d.lastResult, d.lastErr
}

func (d *Driver) runSafely(ctx context.Context) (res *CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Reminder cycle panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("reminder cycle panicked: %v", r)
		}
	}()
	return d.cycler.RunCycle(ctx)
}
