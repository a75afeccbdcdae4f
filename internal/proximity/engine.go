// Package proximity finds the bases that currently have connected users in range.
package proximity

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"basewar/server/internal/geo"
	"basewar/server/internal/store"
)

// Position is where one tracked connection last reported itself.
type Position struct {
	Handle   uuid.UUID
	Location geo.Point
}

// Match is a base with at least one position in range. Handles are ordered
// deterministically.
type Match struct {
	Base    store.Base
	Handles []uuid.UUID
}

// Compute checks every position against every base and returns, in base
// order, the bases with at least one position within rangeMeters. Bases
// without nearby users are omitted.
func Compute(bases []store.Base, positions []Position, rangeMeters float64) []Match {
	if len(bases) == 0 || len(positions) == 0 || rangeMeters < 0 {
		return nil
	}

	ordered := make([]Position, len(positions))
	copy(ordered, positions)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].Handle[:], ordered[j].Handle[:]) < 0
	})

	var matches []Match
	for _, base := range bases {
		var handles []uuid.UUID
		for _, pos := range ordered {
			if geo.Distance(base.Location, pos.Location) <= rangeMeters {
				handles = append(handles, pos.Handle)
			}
		}
		if len(handles) > 0 {
			matches = append(matches, Match{Base: base, Handles: handles})
		}
	}
	return matches
}
