package seating

import (
	"fmt"
	"math"

	"github.com/MarcoPoloResearchLab/roomsync/internal/coerce"
)

// Normalizer rebuilds seating documents from local storage, remote rooms and
// snapshots, including documents written by older versions of the planner.
type Normalizer struct{}

// Default returns a fresh layout of 12 main and 6 overflow tables.
func (Normalizer) Default() State {
	state := State{
		MainTables:     []Table{},
		OverflowTables: []Table{},
		MainDoorways:   DefaultDoorways(),
		Guests:         []Guest{},
		NextGuestID:    1,
	}
	state.RegenerateTables(RoomMain, DefaultMainTables)
	state.RegenerateTables(RoomOverflow, DefaultOverflow)
	return state
}

// Normalize never fails. Unknown shapes fall back to empty collections, the
// legacy "tables" and "seatsPerTable" fields are honored, duplicate ids are
// dropped and seats pointing at missing or already seated guests are emptied.
func (Normalizer) Normalize(raw any) State {
	object := coerce.Map(raw)

	rawMain := coerce.Slice(object["mainTables"])
	if !coerce.IsSlice(object["mainTables"]) {
		rawMain = coerce.Slice(object["tables"])
	}
	rawOverflow := coerce.Slice(object["overflowTables"])
	rawGuests := coerce.Slice(object["guests"])
	seatFallback := coerce.IntOr(object["seatsPerTable"], DefaultSeats, MinSeats, MaxSeats)

	guests := normalizeGuests(rawGuests)
	known := make(map[int64]struct{}, len(guests))
	var maxGuestID int64
	for _, guest := range guests {
		known[guest.ID] = struct{}{}
		if guest.ID > maxGuestID {
			maxGuestID = guest.ID
		}
	}

	seated := make(map[int64]struct{})
	mainTables := normalizeTables(rawMain, RoomMain, 0, seatFallback, known, seated)
	overflowTables := normalizeTables(rawOverflow, RoomOverflow, len(mainTables), seatFallback, known, seated)

	nextGuestID := coerce.IntOr(object["nextGuestId"], int64(len(rawGuests)+1), 1, coerce.MaxSafeInteger)
	if nextGuestID <= maxGuestID {
		nextGuestID = maxGuestID + 1
	}

	return State{
		MainTables:     mainTables,
		OverflowTables: overflowTables,
		MainDoorways:   normalizeDoorways(object["mainDoorways"]),
		Guests:         guests,
		NextGuestID:    nextGuestID,
	}
}

func normalizeGuests(raw []any) []Guest {
	guests := make([]Guest, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for index, entry := range raw {
		source := coerce.Map(entry)
		id := coerce.IntOr(source["id"], int64(index+1), 1, coerce.MaxSafeInteger)
		if _, duplicate := seen[id]; duplicate {
			continue
		}
		seen[id] = struct{}{}
		guests = append(guests, Guest{
			ID:    id,
			Name:  coerce.StringOr(source["name"], ""),
			Group: coerce.String(source["group"]),
		})
	}
	return guests
}

func normalizeTables(raw []any, room RoomKind, mainCount int, seatFallback int64, known, seated map[int64]struct{}) []Table {
	tables := make([]Table, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for index, entry := range raw {
		source := coerce.Map(entry)
		id := coerce.IntOr(source["id"], int64(index+1), 1, MaxTableID)
		if _, duplicate := seen[id]; duplicate {
			continue
		}
		seen[id] = struct{}{}

		rawAssignments := coerce.Slice(source["assignments"])
		seatCount := seatFallback
		switch {
		case source["seatCount"] != nil:
			seatCount = coerce.Int(source["seatCount"], MinSeats, MaxSeats)
		case coerce.IsSlice(source["assignments"]):
			seatCount = coerce.Int(len(rawAssignments), MinSeats, MaxSeats)
		}

		x, y := AutoLayoutPosition(index, max(len(raw), 1))
		tables = append(tables, Table{
			ID:          id,
			TableNumber: coerce.IntOr(source["tableNumber"], defaultTableNumber(room, id, mainCount), 1, MaxTableNumber),
			Name:        coerce.StringOr(source["name"], fmt.Sprintf("Table %d", id)),
			Notes:       coerce.String(source["notes"]),
			X:           coerce.FloatOr(source["x"], x, MinX, MaxX),
			Y:           coerce.FloatOr(source["y"], y, MinY, MaxY),
			SeatCount:   seatCount,
			Assignments: normalizeAssignments(rawAssignments, seatCount, known, seated),
		})
	}
	return tables
}

func normalizeAssignments(raw []any, seatCount int64, known, seated map[int64]struct{}) []GuestRef {
	assignments := make([]GuestRef, seatCount)
	for index := 0; index < len(raw) && int64(index) < seatCount; index++ {
		guestID, ok := coerce.IntRef(raw[index])
		if !ok {
			continue
		}
		if _, exists := known[guestID]; !exists {
			continue
		}
		if _, taken := seated[guestID]; taken {
			continue
		}
		seated[guestID] = struct{}{}
		assignments[index] = GuestRef(guestID)
	}
	return assignments
}

func normalizeDoorways(raw any) []Doorway {
	defaults := DefaultDoorways()
	entries := coerce.Slice(raw)
	if len(entries) == 0 {
		return defaults
	}
	doorways := make([]Doorway, 0, len(defaults))
	for index, fallback := range defaults {
		var source map[string]any
		if index < len(entries) {
			source = coerce.Map(entries[index])
		} else {
			source = map[string]any{}
		}
		doorways = append(doorways, Doorway{
			ID:    coerce.StringOr(source["id"], fallback.ID),
			Label: coerce.StringOr(source["label"], fallback.Label),
			X:     coerce.FloatOr(source["x"], fallback.X, MinX, MaxX),
			Y:     coerce.FloatOr(source["y"], fallback.Y, MinDoorY, MaxY),
		})
	}
	return doorways
}

// AutoLayoutPosition places the index-th of count tables on a column-major grid.
func AutoLayoutPosition(index, count int) (float64, float64) {
	if count < 1 {
		count = 1
	}
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	rows := int(math.Ceil(float64(count) / float64(cols)))
	col := index / rows
	row := index % rows
	return float64(14 + col*16), float64(16 + row*18)
}

func defaultTableNumber(room RoomKind, id int64, mainCount int) int64 {
	if room == RoomOverflow {
		return int64(mainCount) + id
	}
	return id
}
