package network

import (
	"context"

	"basewar/server/logging"
)

const (
	// EventMalformedMessage is emitted when an inbound frame is not valid JSON.
	EventMalformedMessage logging.EventType = "network.malformed_message"
	// EventRateLimited is emitted when an inbound frame exceeds the connection's budget.
	EventRateLimited logging.EventType = "network.rate_limited"
	// EventUnknownCommand is emitted for well-formed frames with an unrecognized command.
	EventUnknownCommand logging.EventType = "network.unknown_command"
)

// MessagePayload describes a dropped inbound frame.
type MessagePayload struct {
	Command string `json:"command,omitempty"`
	Size    int    `json:"size"`
	Reason  string `json:"reason,omitempty"`
}

func publish(ctx context.Context, pub logging.Publisher, typ logging.EventType, severity logging.Severity, actor logging.EntityRef, payload MessagePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     typ,
		Actor:    actor,
		Severity: severity,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	})
}

// MalformedMessage publishes a debug event for an unparsable frame.
func MalformedMessage(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MessagePayload, extra map[string]any) {
	publish(ctx, pub, EventMalformedMessage, logging.SeverityDebug, actor, payload, extra)
}

// RateLimited publishes a warning for a throttled frame.
func RateLimited(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MessagePayload, extra map[string]any) {
	publish(ctx, pub, EventRateLimited, logging.SeverityWarn, actor, payload, extra)
}

// UnknownCommand publishes a debug event for an ignored command.
func UnknownCommand(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MessagePayload, extra map[string]any) {
	publish(ctx, pub, EventUnknownCommand, logging.SeverityDebug, actor, payload, extra)
}
