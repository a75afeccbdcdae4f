package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"basewar/server/logging"
)

// Console prints one line per event:
//
//	WARN  network.rate_limited tick=0 connection:1f2e… size=12 reason="rate limit exceeded"
//
// Payload and extra fields are flattened into sorted key=value pairs.
type Console struct {
	logger *log.Logger
}

func NewConsole(w io.Writer) *Console {
	return &Console{logger: log.New(w, "", log.LstdFlags)}
}

func (s *Console) Write(event logging.Event) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %s", strings.ToUpper(event.Severity.String()), event.Type)
	if event.Tick > 0 {
		fmt.Fprintf(&b, " tick=%d", event.Tick)
	}
	b.WriteByte(' ')
	b.WriteString(entity(event.Actor))
	if len(event.Targets) > 0 {
		names := make([]string, len(event.Targets))
		for i, target := range event.Targets {
			names[i] = entity(target)
		}
		b.WriteString(" -> ")
		b.WriteString(strings.Join(names, ","))
	}
	for _, pair := range flatten(event.Payload, event.Extra) {
		b.WriteByte(' ')
		b.WriteString(pair)
	}
	return s.logger.Output(2, b.String())
}

func (s *Console) Close(context.Context) error {
	return nil
}

func entity(ref logging.EntityRef) string {
	switch {
	case ref.ID == "":
		return string(ref.Kind)
	case ref.Kind == "":
		return ref.ID
	default:
		return string(ref.Kind) + ":" + ref.ID
	}
}

// flatten renders payload (any JSON-encodable value) and extra as key=value
// pairs. A payload that is not a JSON object is emitted as payload=<json>.
func flatten(payload any, extra map[string]any) []string {
	fields := make(map[string]any, len(extra))
	for k, v := range extra {
		fields[k] = v
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		var object map[string]any
		switch {
		case err != nil:
			fields["payload"] = fmt.Sprint(payload)
		case json.Unmarshal(data, &object) == nil:
			for k, v := range object {
				fields[k] = v
			}
		default:
			fields["payload"] = json.RawMessage(data)
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+value(fields[k]))
	}
	return pairs
}

func value(v any) string {
	switch typed := v.(type) {
	case string:
		if typed == "" || strings.ContainsAny(typed, " \t\"=") {
			return fmt.Sprintf("%q", typed)
		}
		return typed
	case json.RawMessage:
		return string(typed)
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(data)
	}
}
