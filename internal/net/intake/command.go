// Package intake turns inbound frames into hub calls.
package intake

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"basewar/server/internal/geo"
	"basewar/server/internal/net/proto"
	"basewar/server/internal/telemetry"
	"basewar/server/logging"
	loggingNetwork "basewar/server/logging/network"
)

// Hub is the part of the server hub that inbound commands reach.
type Hub interface {
	UpdateLocation(ctx context.Context, handle uuid.UUID, userID string, location geo.Point) error
	DebugDump(kind string) bool
}

// Outcome describes what happened to one frame.
type Outcome int

const (
	OutcomeRouted Outcome = iota
	OutcomeMalformed
	OutcomeUnknownCommand
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRouted:
		return "routed"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeUnknownCommand:
		return "unknown_command"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Config struct {
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	// DebugCommands enables the clients, users and bases dumps.
	DebugCommands bool
}

// Router parses frames and dispatches recognised commands. Nothing it drops
// produces a reply.
type Router struct {
	hub     Hub
	logger  telemetry.Logger
	metrics telemetry.Metrics
	pub     logging.Publisher
	debug   bool
}

func NewRouter(hub Hub, cfg Config) *Router {
	r := &Router{hub: hub, logger: cfg.Logger, metrics: cfg.Metrics, pub: cfg.Publisher, debug: cfg.DebugCommands}
	if r.logger == nil {
		r.logger = telemetry.LoggerFunc(nil)
	}
	if r.metrics == nil {
		r.metrics = telemetry.NopMetrics()
	}
	if r.pub == nil {
		r.pub = logging.NopPublisher()
	}
	return r
}

// Handle routes one frame received on handle.
func (r *Router) Handle(ctx context.Context, handle uuid.UUID, payload []byte) Outcome {
	r.metrics.Add(telemetry.MetricMessagesReceived, 1)
	actor := logging.ConnectionRef(handle.String())

	msg, err := proto.DecodeClientMessage(payload)
	if err != nil {
		r.drop(ctx, actor, "", len(payload), err.Error())
		r.logger.Printf("discarding malformed message from %s: %v", handle, err)
		return OutcomeMalformed
	}

	switch msg.Command {
	case proto.CommandUpdateLocation:
		location, err := msg.Location.Point()
		if err != nil || msg.UserID == "" {
			reason := "missing userId"
			if err != nil {
				reason = err.Error()
			}
			r.drop(ctx, actor, msg.Command, len(payload), reason)
			r.logger.Printf("discarding %s from %s: %s", msg.Command, handle, reason)
			return OutcomeMalformed
		}
		if err := r.hub.UpdateLocation(ctx, handle, msg.UserID, location); err != nil {
			// The hub has already replied to the connection where a reply is due.
			if !errors.Is(err, context.Canceled) {
				r.logger.Printf("location update from %s rejected: %v", handle, err)
			}
			return OutcomeRejected
		}
		return OutcomeRouted
	case proto.CommandDebugClients, proto.CommandDebugUsers, proto.CommandDebugBases:
		if r.debug && r.hub.DebugDump(msg.Command) {
			return OutcomeRouted
		}
	}

	r.metrics.Add(telemetry.MetricMessagesDropped, 1)
	loggingNetwork.UnknownCommand(ctx, r.pub, actor, loggingNetwork.MessagePayload{Command: msg.Command, Size: len(payload)}, nil)
	return OutcomeUnknownCommand
}

func (r *Router) drop(ctx context.Context, actor logging.EntityRef, command string, size int, reason string) {
	r.metrics.Add(telemetry.MetricMessagesDropped, 1)
	loggingNetwork.MalformedMessage(ctx, r.pub, actor, loggingNetwork.MessagePayload{Command: command, Size: size, Reason: reason}, nil)
}
