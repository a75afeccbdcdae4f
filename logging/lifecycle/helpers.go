package lifecycle

import (
	"context"

	"basewar/server/logging"
)

const (
	// EventSessionOpened is emitted when a transport connection is accepted.
	EventSessionOpened logging.EventType = "lifecycle.session_opened"
	// EventSessionClosed is emitted when a transport connection goes away.
	EventSessionClosed logging.EventType = "lifecycle.session_closed"
	// EventUserTracked is emitted when a connection's first location update resolves its user.
	EventUserTracked logging.EventType = "lifecycle.user_tracked"
	// EventUnknownUser is emitted when a location update names a user the store cannot resolve.
	EventUnknownUser logging.EventType = "lifecycle.unknown_user"
)

// SessionClosedPayload captures why a connection left.
type SessionClosedPayload struct {
	UserID string `json:"userId,omitempty"`
	Reason string `json:"reason"`
}

// UserTrackedPayload captures the balance seeded from the store.
type UserTrackedPayload struct {
	UserID string  `json:"userId"`
	Money  float64 `json:"money"`
}

// UnknownUserPayload describes the failed lookup.
type UnknownUserPayload struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// SessionOpened publishes a connection accept event.
func SessionOpened(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionOpened,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "lifecycle",
		Extra:    extra,
	})
}

// SessionClosed publishes a connection close event.
func SessionClosed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SessionClosedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionClosed,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}

// UserTracked publishes the creation of a registry entry.
func UserTracked(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload UserTrackedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUserTracked,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}

// UnknownUser publishes a warning for an unresolvable user id.
func UnknownUser(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload UnknownUserPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnknownUser,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}
