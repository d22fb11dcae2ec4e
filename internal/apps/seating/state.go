// Package seating models the seating-chart planner: two rooms of round tables,
// a guest list and seat assignments.
package seating

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
)

const (
	Namespace  = "seat_studio"
	StorageKey = "the-seat-studio-v1"
	HistoryKey = "the-seat-studio-history-v1"
	Debounce   = 220 * time.Millisecond
)

// LegacyKeys are read when StorageKey holds nothing.
var LegacyKeys = []string{"black-tie-seating-v2", "black-tie-seating-v1"}

const (
	MinSeats     = 6
	MaxSeats     = 12
	DefaultSeats = 10

	MaxTableID        = 1000
	MaxTableNumber    = 9999
	MaxTablesPerRoom  = 100
	DefaultMainTables = 12
	DefaultOverflow   = 6

	MinX         = 0.0
	MaxX         = 94.0
	MinY         = 8.0
	MaxY         = 94.0
	MinDoorY     = 0.0
	NewTableMinX = 3.0
)

// RoomKind selects one of the two table layouts.
type RoomKind string

const (
	RoomMain     RoomKind = "main"
	RoomOverflow RoomKind = "overflow"
)

// Label is the human-readable room name used in exports.
func (r RoomKind) Label() string {
	if r == RoomOverflow {
		return "Overflow Room"
	}
	return "Main Room"
}

// GuestRef is a seat occupant. Zero is an empty seat and encodes as JSON null.
type GuestRef int64

func (g GuestRef) MarshalJSON() ([]byte, error) {
	if g <= 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(int64(g), 10)), nil
}

func (g *GuestRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*g = 0
		return nil
	}
	var value float64
	if err := json.Unmarshal(trimmed, &value); err != nil || value < 1 {
		*g = 0
		return nil
	}
	*g = GuestRef(int64(value))
	return nil
}

// Table is a round table with a fixed number of seats.
type Table struct {
	ID          int64      `json:"id"`
	TableNumber int64      `json:"tableNumber"`
	Name        string     `json:"name"`
	Notes       string     `json:"notes"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	SeatCount   int64      `json:"seatCount"`
	Assignments []GuestRef `json:"assignments"`
}

// Doorway marks an entrance on the main room layout.
type Doorway struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type Guest struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// State is the full seating document.
type State struct {
	MainTables     []Table   `json:"mainTables"`
	OverflowTables []Table   `json:"overflowTables"`
	MainDoorways   []Doorway `json:"mainDoorways"`
	Guests         []Guest   `json:"guests"`
	NextGuestID    int64     `json:"nextGuestId"`
}

// DefaultDoorways returns the two entrances of a fresh layout.
func DefaultDoorways() []Doorway {
	return []Doorway{
		{ID: "door-1", Label: "DOORWAY 1", X: 10, Y: 84},
		{ID: "door-2", Label: "DOORWAY 2", X: 74, Y: 84},
	}
}

// Profile wires the seating planner into a collab controller.
func Profile() collab.Profile[State] {
	return collab.Profile[State]{
		Namespace:  Namespace,
		StorageKey: StorageKey,
		LegacyKeys: append([]string(nil), LegacyKeys...),
		HistoryKey: HistoryKey,
		Debounce:   Debounce,
		Normalizer: Normalizer{},
	}
}
