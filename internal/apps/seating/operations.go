package seating

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/roomsync/internal/coerce"
)

var (
	ErrUnknownRoom      = errors.New("seating: unknown room")
	ErrTableNotFound    = errors.New("seating: table not found")
	ErrSeatOutOfRange   = errors.New("seating: seat out of range")
	ErrGuestNotFound    = errors.New("seating: guest not found")
	ErrGuestNameMissing = errors.New("seating: guest name is required")
	ErrDoorwayNotFound  = errors.New("seating: doorway not found")
)

// ParseRoom maps user input onto a RoomKind.
func ParseRoom(raw string) (RoomKind, error) {
	switch RoomKind(strings.ToLower(strings.TrimSpace(raw))) {
	case RoomMain:
		return RoomMain, nil
	case RoomOverflow:
		return RoomOverflow, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRoom, raw)
	}
}

// Tables returns the tables of room.
func (s *State) Tables(room RoomKind) []Table {
	if room == RoomOverflow {
		return s.OverflowTables
	}
	return s.MainTables
}

func (s *State) setTables(room RoomKind, tables []Table) {
	if room == RoomOverflow {
		s.OverflowTables = tables
		return
	}
	s.MainTables = tables
}

// Table finds a table by its room-local id.
func (s *State) Table(room RoomKind, tableID int64) (*Table, error) {
	tables := s.Tables(room)
	for index := range tables {
		if tables[index].ID == tableID {
			return &tables[index], nil
		}
	}
	return nil, fmt.Errorf("%w: %s table %d", ErrTableNotFound, room, tableID)
}

// DisplayTableNumber returns the number printed on a table card. Overflow
// tables without an explicit number continue after the main room.
func (s *State) DisplayTableNumber(room RoomKind, table Table) int64 {
	if table.TableNumber > 0 {
		return coerce.Int(table.TableNumber, 1, MaxTableNumber)
	}
	return defaultTableNumber(room, table.ID, len(s.MainTables))
}

// RegenerateTables resizes room to count tables. Tables whose id survives keep
// their settings; new tables get ten empty seats on the auto layout grid.
func (s *State) RegenerateTables(room RoomKind, count int) {
	count = int(coerce.Int(count, 0, MaxTablesPerRoom))
	existing := make(map[int64]Table, len(s.Tables(room)))
	for _, table := range s.Tables(room) {
		existing[table.ID] = table
	}

	next := make([]Table, 0, count)
	for index := 0; index < count; index++ {
		id := int64(index + 1)
		if old, ok := existing[id]; ok {
			old.SeatCount = coerce.Int(old.SeatCount, MinSeats, MaxSeats)
			old.Assignments = resizeAssignments(old.Assignments, old.SeatCount)
			old.Name = strings.TrimSpace(old.Name)
			if old.Name == "" {
				old.Name = fmt.Sprintf("Table %d", id)
			}
			if old.TableNumber <= 0 {
				old.TableNumber = defaultTableNumber(room, id, len(s.MainTables))
			}
			old.TableNumber = coerce.Int(old.TableNumber, 1, MaxTableNumber)
			old.X = coerce.Float(old.X, MinX, MaxX)
			old.Y = coerce.Float(old.Y, MinY, MaxY)
			next = append(next, old)
			continue
		}

		x, y := AutoLayoutPosition(index, max(count, 1))
		number := defaultTableNumber(room, id, len(s.MainTables))
		next = append(next, Table{
			ID:          id,
			TableNumber: number,
			Name:        fmt.Sprintf("Table %d", number),
			Notes:       "",
			SeatCount:   DefaultSeats,
			X:           coerce.Float(x, NewTableMinX, MaxX),
			Y:           coerce.Float(y, MinY, MaxY),
			Assignments: make([]GuestRef, DefaultSeats),
		})
	}

	known := s.guestIDs()
	for tableIndex := range next {
		for seat, guestID := range next[tableIndex].Assignments {
			if _, ok := known[int64(guestID)]; !ok {
				next[tableIndex].Assignments[seat] = 0
			}
		}
	}
	s.setTables(room, next)
}

// AddGuest appends a guest with the next unused id.
func (s *State) AddGuest(name, group string) (Guest, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Guest{}, ErrGuestNameMissing
	}
	if s.NextGuestID < 1 {
		s.NextGuestID = 1
	}
	guest := Guest{ID: s.NextGuestID, Name: name, Group: strings.TrimSpace(group)}
	s.NextGuestID++
	s.Guests = append(s.Guests, guest)
	return guest, nil
}

// RemoveGuest deletes a guest and empties their seat. Ids are not reused.
func (s *State) RemoveGuest(guestID int64) error {
	for index, guest := range s.Guests {
		if guest.ID != guestID {
			continue
		}
		s.Guests = append(s.Guests[:index], s.Guests[index+1:]...)
		s.clearGuestFromAnySeat(guestID)
		return nil
	}
	return fmt.Errorf("%w: %d", ErrGuestNotFound, guestID)
}

// Guest looks a guest up by id.
func (s *State) Guest(guestID int64) (Guest, bool) {
	for _, guest := range s.Guests {
		if guest.ID == guestID {
			return guest, true
		}
	}
	return Guest{}, false
}

// AssignSeat seats a guest, moving them out of any seat they held. A zero
// guest id empties the seat.
func (s *State) AssignSeat(room RoomKind, tableID int64, seatIndex int, guestID int64) error {
	table, err := s.Table(room, tableID)
	if err != nil {
		return err
	}
	if seatIndex < 0 || seatIndex >= len(table.Assignments) {
		return fmt.Errorf("%w: seat %d of %d", ErrSeatOutOfRange, seatIndex+1, len(table.Assignments))
	}
	if guestID <= 0 {
		table.Assignments[seatIndex] = 0
		return nil
	}
	if _, ok := s.Guest(guestID); !ok {
		return fmt.Errorf("%w: %d", ErrGuestNotFound, guestID)
	}
	s.clearGuestFromAnySeat(guestID)
	table.Assignments[seatIndex] = GuestRef(guestID)
	return nil
}

// ClearSeat empties one seat.
func (s *State) ClearSeat(room RoomKind, tableID int64, seatIndex int) error {
	return s.AssignSeat(room, tableID, seatIndex, 0)
}

// SetSeatCount changes a table's size, dropping assignments beyond it.
func (s *State) SetSeatCount(room RoomKind, tableID int64, seatCount int64) error {
	table, err := s.Table(room, tableID)
	if err != nil {
		return err
	}
	table.SeatCount = coerce.Int(seatCount, MinSeats, MaxSeats)
	table.Assignments = resizeAssignments(table.Assignments, table.SeatCount)
	return nil
}

// RenameTable sets a table name; a blank name restores "Table <number>".
func (s *State) RenameTable(room RoomKind, tableID int64, name string) error {
	table, err := s.Table(room, tableID)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Table %d", s.DisplayTableNumber(room, *table))
	}
	table.Name = name
	return nil
}

func (s *State) SetTableNotes(room RoomKind, tableID int64, notes string) error {
	table, err := s.Table(room, tableID)
	if err != nil {
		return err
	}
	table.Notes = notes
	return nil
}

func (s *State) SetTableNumber(room RoomKind, tableID int64, number int64) error {
	table, err := s.Table(room, tableID)
	if err != nil {
		return err
	}
	table.TableNumber = coerce.Int(number, 1, MaxTableNumber)
	return nil
}

// MoveTable places a table on the layout, clamped to the drawable area.
func (s *State) MoveTable(room RoomKind, tableID int64, x, y float64) error {
	table, err := s.Table(room, tableID)
	if err != nil {
		return err
	}
	table.X = coerce.Float(x, MinX, MaxX)
	table.Y = coerce.Float(y, MinY, MaxY)
	return nil
}

// MoveDoorway places one of the main room entrances.
func (s *State) MoveDoorway(doorwayID string, x, y float64) error {
	for index := range s.MainDoorways {
		if s.MainDoorways[index].ID != doorwayID {
			continue
		}
		s.MainDoorways[index].X = coerce.Float(x, MinX, MaxX)
		s.MainDoorways[index].Y = coerce.Float(y, MinDoorY, MaxY)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrDoorwayNotFound, doorwayID)
}

// Reset discards every table, guest and assignment.
func (s *State) Reset() {
	*s = Normalizer{}.Default()
}

// UnseatedGuests lists guests without a seat, in guest-list order.
func (s *State) UnseatedGuests() []Guest {
	seated := s.seatedGuestIDs()
	var unseated []Guest
	for _, guest := range s.Guests {
		if _, ok := seated[guest.ID]; !ok {
			unseated = append(unseated, guest)
		}
	}
	return unseated
}

// SeatTitle describes a seat the way the layout tooltip does.
func (s *State) SeatTitle(table Table, seatIndex int) string {
	var guestID GuestRef
	if seatIndex >= 0 && seatIndex < len(table.Assignments) {
		guestID = table.Assignments[seatIndex]
	}
	if guestID == 0 {
		return fmt.Sprintf("%s Seat %d: Empty", table.Name, seatIndex+1)
	}
	name := "Unknown"
	if guest, ok := s.Guest(int64(guestID)); ok {
		name = guest.Name
	}
	return fmt.Sprintf("%s Seat %d: %s", table.Name, seatIndex+1, name)
}

// SnapshotSummary counts tables and guests in a stored snapshot payload,
// accepting the legacy "tables" field.
func SnapshotSummary(payload json.RawMessage) (tables int, guests int) {
	object := coerce.Map(payload)
	if coerce.IsSlice(object["mainTables"]) {
		tables = len(coerce.Slice(object["mainTables"]))
	} else {
		tables = len(coerce.Slice(object["tables"]))
	}
	tables += len(coerce.Slice(object["overflowTables"]))
	return tables, len(coerce.Slice(object["guests"]))
}

func (s *State) clearGuestFromAnySeat(guestID int64) {
	for _, tables := range [][]Table{s.MainTables, s.OverflowTables} {
		for tableIndex := range tables {
			for seat, occupant := range tables[tableIndex].Assignments {
				if int64(occupant) == guestID {
					tables[tableIndex].Assignments[seat] = 0
				}
			}
		}
	}
}

func (s *State) guestIDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(s.Guests))
	for _, guest := range s.Guests {
		ids[guest.ID] = struct{}{}
	}
	return ids
}

func (s *State) seatedGuestIDs() map[int64]struct{} {
	seated := make(map[int64]struct{})
	for _, tables := range [][]Table{s.MainTables, s.OverflowTables} {
		for _, table := range tables {
			for _, occupant := range table.Assignments {
				if occupant > 0 {
					seated[int64(occupant)] = struct{}{}
				}
			}
		}
	}
	return seated
}

func resizeAssignments(assignments []GuestRef, seatCount int64) []GuestRef {
	resized := make([]GuestRef, seatCount)
	copy(resized, assignments)
	return resized
}
