// Package proto defines the JSON text frames exchanged over the websocket.
package proto

import (
	"encoding/json"
	"fmt"

	"basewar/server/internal/geo"
)

// Inbound commands.
const (
	CommandUpdateLocation = "updateLocation"
	// Operator commands that dump server state to the log.
	CommandDebugClients = "clients"
	CommandDebugUsers   = "users"
	CommandDebugBases   = "bases"
)

// Outbound commands.
const (
	CommandUpdateUser   = "updateUser"
	CommandNotification = "notification"
	CommandError        = "error"
)

// ClientMessage is every inbound frame. Only the fields of Command are set.
type ClientMessage struct {
	Command  string    `json:"command" jsonschema:"required"`
	Location *Location `json:"location,omitempty"`
	UserID   string    `json:"userId,omitempty"`
}

// Location is a GeoJSON-style point: coordinates are [longitude, latitude].
type Location struct {
	Type        string    `json:"type,omitempty"`
	Coordinates []float64 `json:"coordinates" jsonschema:"required,minItems=2,maxItems=3"`
}

// Point validates l and converts it.
func (l *Location) Point() (geo.Point, error) {
	if l == nil {
		return geo.Point{}, fmt.Errorf("missing location")
	}
	if len(l.Coordinates) < 2 {
		return geo.Point{}, fmt.Errorf("location needs [lon, lat], got %d values", len(l.Coordinates))
	}
	lon, lat := l.Coordinates[0], l.Coordinates[1]
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return geo.Point{}, fmt.Errorf("location [%v, %v] out of range", lon, lat)
	}
	return geo.Point{Lon: lon, Lat: lat}, nil
}

// ServerMessage is every outbound frame.
type ServerMessage struct {
	Command string `json:"command" jsonschema:"required"`
	Params  any    `json:"params" jsonschema:"required"`
}

type UpdateUserParams struct {
	Money  float64 `json:"money"`
	Income float64 `json:"income"`
}

type NotificationParams struct {
	Message string `json:"message"`
}

type ErrorParams struct {
	Message string `json:"message"`
}

// DecodeClientMessage parses an inbound frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

func EncodeUpdateUser(money, income float64) ([]byte, error) {
	return json.Marshal(ServerMessage{Command: CommandUpdateUser, Params: UpdateUserParams{Money: money, Income: income}})
}

func EncodeNotification(message string) ([]byte, error) {
	return json.Marshal(ServerMessage{Command: CommandNotification, Params: NotificationParams{Message: message}})
}

func EncodeError(message string) ([]byte, error) {
	return json.Marshal(ServerMessage{Command: CommandError, Params: ErrorParams{Message: message}})
}
