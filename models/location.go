package models

import (
	"fmt"
	"regexp"
	"strconv"
)

type Location struct {
	ID          string   `json:"id"`
	Position    Position `json:"position"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
}

const (
	LocationIntersection = "LOC_001"
	LocationStartA       = "LOC_START_A"
	LocationStartB       = "LOC_START_B"
)

var PredefinedLocations = map[string]Location{
	LocationIntersection: {
		ID:          LocationIntersection,
		Position:    Position{Lat: 35.6787, Lng: 139.7587},
		Name:        "Central intersection",
		Description: "Collision point where agent-1 and agent-2 meet",
	},
	LocationStartA: {
		ID:       LocationStartA,
		Position: Position{Lat: 35.6762, Lng: 139.6503},
		Name:     "agent-1 start",
	},
	LocationStartB: {
		ID:       LocationStartB,
		Position: Position{Lat: 35.6812, Lng: 139.7671},
		Name:     "agent-2 start",
	},
}

var locationIDPattern = regexp.MustCompile(`^LOC_(-?[\d.]+)_(-?[\d.]+)$`)

// GenerateLocationID encodes a coordinate as LOC_<lat>_<lng> with four decimals.
func GenerateLocationID(p Position) string {
	return fmt.Sprintf("LOC_%.4f_%.4f", p.Lat, p.Lng)
}

// ParseLocationID resolves predefined ids and coordinate-encoded ids.
func ParseLocationID(id string) (Position, bool) {
	if loc, ok := PredefinedLocations[id]; ok {
		return loc.Position, true
	}
	m := locationIDPattern.FindStringSubmatch(id)
	if m == nil {
		return Position{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Position{}, false
	}
	lng, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return Position{}, false
	}
	return Position{Lat: lat, Lng: lng}, true
}
