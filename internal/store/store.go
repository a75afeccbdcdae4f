// Package store defines the persistence collaborator the economy engine reads
// users, bases and investments from, plus its in-memory and Postgres backends.
package store

import (
	"context"
	"errors"
	"fmt"

	geojson "github.com/paulmach/go.geojson"

	"basewar/server/internal/geo"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrNotPoint is returned by DecodePoint for valid geometries of another type.
var ErrNotPoint = errors.New("store: location is not a Point")

type User struct {
	ID    string
	Name  string
	Money float64
}

type Base struct {
	ID       string
	Name     string
	OwnerID  string
	Location geo.Point
}

// Store is the set of persistence operations the engine depends on. Timeouts
// are the implementation's concern.
type Store interface {
	UserByID(ctx context.Context, id string) (User, error)
	SaveUserBalance(ctx context.Context, id string, money float64) error
	ListBases(ctx context.Context) ([]Base, error)
	CountInvestments(ctx context.Context, baseID string) (int, error)
}

// DecodePoint parses a GeoJSON geometry and requires it to be a Point.
func DecodePoint(data []byte) (geo.Point, error) {
	geometry, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return geo.Point{}, fmt.Errorf("decode location: %w", err)
	}
	if !geometry.IsPoint() || len(geometry.Point) < 2 {
		return geo.Point{}, fmt.Errorf("%w: got %s", ErrNotPoint, geometry.Type)
	}
	return geo.Point{Lon: geometry.Point[0], Lat: geometry.Point[1]}, nil
}

// EncodePoint renders p as a GeoJSON Point geometry.
func EncodePoint(p geo.Point) ([]byte, error) {
	return geojson.NewPointGeometry([]float64{p.Lon, p.Lat}).MarshalJSON()
}
