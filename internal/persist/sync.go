// Package persist writes cached balances back to the store when a session ends.
package persist

import (
	"context"
	"sync"

	"basewar/server/internal/telemetry"
	"basewar/server/logging"
	loggingEconomy "basewar/server/logging/economy"
)

// BalanceSaver is the part of the store a Flusher needs.
type BalanceSaver interface {
	SaveUserBalance(ctx context.Context, id string, money float64) error
}

type Config struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
}

// Flusher overwrites persisted balances. Failures are reported and dropped;
// there is no retry.
type Flusher struct {
	store   BalanceSaver
	logger  telemetry.Logger
	metrics telemetry.Metrics
	pub     logging.Publisher
	wg      sync.WaitGroup
}

func NewFlusher(store BalanceSaver, cfg Config) *Flusher {
	f := &Flusher{
		store:   store,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		pub:     cfg.Publisher,
	}
	if f.logger == nil {
		f.logger = telemetry.LoggerFunc(nil)
	}
	if f.metrics == nil {
		f.metrics = telemetry.NopMetrics()
	}
	if f.pub == nil {
		f.pub = logging.NopPublisher()
	}
	return f
}

// Flush saves money for userID in the background and returns immediately.
func (f *Flusher) Flush(userID string, money float64) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		_ = f.FlushSync(context.Background(), userID, money)
	}()
}

// FlushSync saves money for userID and reports the outcome.
func (f *Flusher) FlushSync(ctx context.Context, userID string, money float64) error {
	actor := logging.UserRef(userID)
	if err := f.store.SaveUserBalance(ctx, userID, money); err != nil {
		f.metrics.Add(telemetry.MetricFlushFailures, 1)
		f.logger.Printf("failed to persist balance %.2f for %s: %v", money, userID, err)
		loggingEconomy.BalanceFlushFailed(ctx, f.pub, actor, loggingEconomy.BalanceFlushPayload{Money: money, Reason: err.Error()}, nil)
		return err
	}
	loggingEconomy.BalanceFlushed(ctx, f.pub, actor, loggingEconomy.BalanceFlushPayload{Money: money}, nil)
	return nil
}

// Wait blocks until every background flush has finished.
func (f *Flusher) Wait() {
	f.wg.Wait()
}
