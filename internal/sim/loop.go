// Package sim drives the fixed-rate economy tick.
package sim

import (
	"context"
	"time"

	"basewar/server/logging"
)

// DefaultInterval is used when LoopConfig.Interval is not positive.
const DefaultInterval = time.Second

// TickResult summarises one pass of the economy engine.
type TickResult struct {
	Tick         uint64
	Duration     time.Duration
	Bases        int
	ActiveBases  int
	TrackedUsers int
	FailedBases  int
	// Aborted is set when the base list could not be loaded.
	Aborted bool
}

// Stepper performs one tick. Implementations must tolerate store latency.
type Stepper interface {
	Tick(ctx context.Context, tick uint64) TickResult
}

// LoopConfig tunes the tick loop.
type LoopConfig struct {
	Interval time.Duration
	Clock    logging.Clock
}

// LoopHooks observe the loop without influencing it.
type LoopHooks struct {
	AfterTick func(TickResult)
}

// Loop runs a Stepper on a fixed interval. Ticks never overlap: a slow tick
// delays the next one and missed intervals are dropped.
type Loop struct {
	stepper Stepper
	config  LoopConfig
	hooks   LoopHooks
	tick    uint64
}

func NewLoop(stepper Stepper, cfg LoopConfig, hooks LoopHooks) *Loop {
	if stepper == nil {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.SystemClock{}
	}
	return &Loop{stepper: stepper, config: cfg, hooks: hooks}
}

// Interval reports the configured tick spacing.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Interval
}

// Advance runs a single tick immediately.
func (l *Loop) Advance(ctx context.Context) TickResult {
	if l == nil {
		return TickResult{}
	}
	l.tick++
	start := l.config.Clock.Now()
	// Store calls inside a tick run to completion; ctx only stops the loop.
	result := l.stepper.Tick(context.WithoutCancel(ctx), l.tick)
	result.Tick = l.tick
	result.Duration = l.config.Clock.Now().Sub(start)
	if l.hooks.AfterTick != nil {
		l.hooks.AfterTick(result)
	}
	return result
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Advance(ctx)
		}
	}
}
