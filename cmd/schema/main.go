package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"basewar/server/internal/config"
	"basewar/server/internal/net/proto"
)

// Wire frames as they appear on the socket, one type per command.
type updateUserFrame struct {
	Command string                 `json:"command" jsonschema:"required,enum=updateUser"`
	Params  proto.UpdateUserParams `json:"params" jsonschema:"required"`
}

type notificationFrame struct {
	Command string                   `json:"command" jsonschema:"required,enum=notification"`
	Params  proto.NotificationParams `json:"params" jsonschema:"required"`
}

type errorFrame struct {
	Command string            `json:"command" jsonschema:"required,enum=error"`
	Params  proto.ErrorParams `json:"params" jsonschema:"required"`
}

type protocol struct {
	Inbound      proto.ClientMessage `json:"inbound"`
	UpdateUser   updateUserFrame     `json:"updateUser"`
	Notification notificationFrame   `json:"notification"`
	Error        errorFrame          `json:"error"`
}

func main() {
	var outPath, kind string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.StringVar(&kind, "kind", "protocol", "schema to generate: protocol or settings")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	schema, err := buildSchema(kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := writeSchema(outPath, schema); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func buildSchema(kind string) (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{}
	switch kind {
	case "protocol":
		schema := reflector.Reflect(new(protocol))
		schema.Title = "Base proximity protocol"
		schema.Description = "Websocket text frames exchanged between clients and the server"
		return schema, nil
	case "settings":
		reflector.AllowAdditionalProperties = false
		schema := reflector.Reflect(new(config.Settings))
		schema.Title = "Game settings"
		schema.Description = "Validates the YAML file named by GAME_SETTINGS"
		return schema, nil
	default:
		return nil, fmt.Errorf("unknown schema kind %q", kind)
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
