package economy

import (
	"context"

	"basewar/server/logging"
)

const (
	// EventIncomeCredited is emitted once per active base per tick.
	EventIncomeCredited logging.EventType = "economy.income_credited"
	// EventBalanceFlushed is emitted when a cached balance is written back to the store.
	EventBalanceFlushed logging.EventType = "economy.balance_flushed"
	// EventBalanceFlushFailed is emitted when the write-back fails. The balance is lost.
	EventBalanceFlushFailed logging.EventType = "economy.balance_flush_failed"
)

// IncomeCreditedPayload describes the income paid out by a base.
type IncomeCreditedPayload struct {
	Income          float64 `json:"income"`
	Investments     int     `json:"investments"`
	ActiveUserCount int     `json:"activeUsers"`
}

// BalanceFlushPayload describes a disconnect-time write-back.
type BalanceFlushPayload struct {
	Money  float64 `json:"money"`
	Reason string  `json:"reason,omitempty"`
}

// IncomeCredited publishes a debug event for a base payout. Targets are the credited users.
func IncomeCredited(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, targets []logging.EntityRef, payload IncomeCreditedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventIncomeCredited,
		Tick:     tick,
		Actor:    actor,
		Targets:  targets,
		Severity: logging.SeverityDebug,
		Category: "economy",
		Payload:  payload,
		Extra:    extra,
	})
}

// BalanceFlushed publishes a successful write-back.
func BalanceFlushed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload BalanceFlushPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBalanceFlushed,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "economy",
		Payload:  payload,
		Extra:    extra,
	})
}

// BalanceFlushFailed publishes an error for a lost write-back.
func BalanceFlushFailed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload BalanceFlushPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBalanceFlushFailed,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: "economy",
		Payload:  payload,
		Extra:    extra,
	})
}
