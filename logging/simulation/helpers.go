package simulation

import (
	"context"

	"basewar/server/logging"
)

const (
	// EventTickCompleted is emitted after every tick.
	EventTickCompleted logging.EventType = "simulation.tick_completed"
	// EventStoreFailure is emitted when a store call aborts part of a tick.
	EventStoreFailure logging.EventType = "simulation.store_failure"
	// EventOwnerNotified is emitted when a base owner is told someone is nearby.
	EventOwnerNotified logging.EventType = "simulation.owner_notified"
)

// TickCompletedPayload summarises one tick.
type TickCompletedPayload struct {
	DurationMillis int64 `json:"durationMillis"`
	Bases          int   `json:"bases"`
	ActiveBases    int   `json:"activeBases"`
	TrackedUsers   int   `json:"trackedUsers"`
	FailedBases    int   `json:"failedBases"`
}

// StoreFailurePayload describes which store call failed.
type StoreFailurePayload struct {
	Operation     string `json:"operation"`
	Error         string `json:"error"`
	AffectedUsers int    `json:"affectedUsers"`
}

// OwnerNotifiedPayload names the visitor and the base.
type OwnerNotifiedPayload struct {
	BaseName  string `json:"baseName"`
	VisitorID string `json:"visitorId"`
	Delivered bool   `json:"delivered"`
}

// TickCompleted publishes a debug summary for a tick.
func TickCompleted(ctx context.Context, pub logging.Publisher, tick uint64, payload TickCompletedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickCompleted,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityDebug,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	})
}

// StoreFailure publishes an error for a failed store call during a tick.
func StoreFailure(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StoreFailurePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStoreFailure,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	})
}

// OwnerNotified publishes a proximity notification. Actor is the owner.
func OwnerNotified(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload OwnerNotifiedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventOwnerNotified,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "simulation",
		Payload:  payload,
		Extra:    extra,
	})
}
