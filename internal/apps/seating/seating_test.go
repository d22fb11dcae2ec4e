package seating

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/localstore"
)

func decode(t *testing.T, document string) any {
	t.Helper()
	var raw any
	if err := json.Unmarshal([]byte(document), &raw); err != nil {
		t.Fatalf("invalid test document: %v", err)
	}
	return raw
}

func roundTrip(t *testing.T, state State) any {
	t.Helper()
	encoded, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return decode(t, string(encoded))
}

var normalizeInputs = map[string]string{
	"empty object": `{}`,
	"null":         `null`,
	"array":        `[1,2,3]`,
	"string":       `"tables"`,
	"wrong types":  `{"mainTables":"x","guests":{"a":1},"nextGuestId":"soon","mainDoorways":7}`,
	"legacy": `{"tables":[{"id":1,"name":"Head","assignments":[1,2]},{"name":"  "}],
		"seatsPerTable":8,"guests":[{"id":1,"name":" Ana "},{"id":2,"name":"Ben","group":"Family"}]}`,
	"dangling and duplicate seats": `{"mainTables":[{"id":1,"seatCount":6,"assignments":[1,1,99,"2",2.5,null,3]},
		{"id":1,"name":"dup"}],"overflowTables":[{"id":4,"assignments":[2,1]}],
		"guests":[{"id":1,"name":"Ana"},{"id":2,"name":"Ben"},{"id":2,"name":"Ben again"}],"nextGuestId":1}`,
	"out of bounds": `{"mainTables":[{"id":5000,"tableNumber":-3,"x":-10,"y":400,"seatCount":99}],
		"mainDoorways":[{"id":"","label":"Side","x":120,"y":-4}]}`,
}

func TestNormalizeIsTotalAndIdempotent(t *testing.T) {
	normalizer := Normalizer{}
	for name, document := range normalizeInputs {
		t.Run(name, func(t *testing.T) {
			first := normalizer.Normalize(decode(t, document))
			assertValid(t, first)
			second := normalizer.Normalize(roundTrip(t, first))
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("normalize is not idempotent:\nfirst  %+v\nsecond %+v", first, second)
			}
		})
	}
}

func TestNormalizeAcceptsRawBytes(t *testing.T) {
	state := Normalizer{}.Normalize(json.RawMessage(`{"guests":[{"id":3,"name":"Cy"}]}`))
	if len(state.Guests) != 1 || state.NextGuestID != 4 {
		t.Fatalf("unexpected state from raw bytes: %+v", state)
	}
}

func assertValid(t *testing.T, state State) {
	t.Helper()
	if state.MainTables == nil || state.OverflowTables == nil || state.Guests == nil {
		t.Fatalf("collections must be non-nil: %+v", state)
	}
	if len(state.MainDoorways) != 2 {
		t.Fatalf("expected two doorways, got %d", len(state.MainDoorways))
	}
	guests := make(map[int64]bool)
	for _, guest := range state.Guests {
		if guests[guest.ID] {
			t.Fatalf("duplicate guest id %d", guest.ID)
		}
		guests[guest.ID] = true
		if guest.ID >= state.NextGuestID {
			t.Fatalf("nextGuestId %d not above guest %d", state.NextGuestID, guest.ID)
		}
	}
	seated := make(map[GuestRef]bool)
	for _, tables := range [][]Table{state.MainTables, state.OverflowTables} {
		ids := make(map[int64]bool)
		for _, table := range tables {
			if ids[table.ID] {
				t.Fatalf("duplicate table id %d", table.ID)
			}
			ids[table.ID] = true
			if table.ID < 1 || table.ID > MaxTableID || table.TableNumber < 1 || table.TableNumber > MaxTableNumber {
				t.Fatalf("table out of bounds: %+v", table)
			}
			if table.SeatCount < MinSeats || table.SeatCount > MaxSeats || int64(len(table.Assignments)) != table.SeatCount {
				t.Fatalf("seat count mismatch: %+v", table)
			}
			if table.X < MinX || table.X > MaxX || table.Y < MinY || table.Y > MaxY {
				t.Fatalf("position out of bounds: %+v", table)
			}
			for _, occupant := range table.Assignments {
				if occupant == 0 {
					continue
				}
				if !guests[int64(occupant)] {
					t.Fatalf("dangling occupant %d", occupant)
				}
				if seated[occupant] {
					t.Fatalf("guest %d seated twice", occupant)
				}
				seated[occupant] = true
			}
		}
	}
}

func TestNormalizeHonorsLegacyFields(t *testing.T) {
	state := Normalizer{}.Normalize(decode(t, normalizeInputs["legacy"]))
	if len(state.MainTables) != 2 {
		t.Fatalf("expected legacy tables as main tables, got %d", len(state.MainTables))
	}
	head := state.MainTables[0]
	if head.Name != "Head" || head.SeatCount != MinSeats {
		t.Fatalf("unexpected head table %+v", head)
	}
	second := state.MainTables[1]
	if second.ID != 2 || second.Name != "Table 2" || second.SeatCount != 8 {
		t.Fatalf("expected seatsPerTable fallback and default name, got %+v", second)
	}
	if state.Guests[0].Name != "Ana" || state.NextGuestID != 3 {
		t.Fatalf("unexpected guests %+v next %d", state.Guests, state.NextGuestID)
	}
	x, y := AutoLayoutPosition(1, 2)
	if second.X != x || second.Y != y {
		t.Fatalf("expected auto layout position (%v,%v), got (%v,%v)", x, y, second.X, second.Y)
	}
}

func TestNormalizeClearsDanglingReferences(t *testing.T) {
	state := Normalizer{}.Normalize(decode(t, normalizeInputs["dangling and duplicate seats"]))
	want := []GuestRef{1, 0, 0, 2, 0, 0}
	if !reflect.DeepEqual(state.MainTables[0].Assignments, want) {
		t.Fatalf("expected assignments %v, got %v", want, state.MainTables[0].Assignments)
	}
	if len(state.MainTables) != 1 {
		t.Fatalf("duplicate table ids must be dropped")
	}
	overflow := state.OverflowTables[0]
	if overflow.Assignments[0] != 0 || overflow.Assignments[1] != 0 {
		t.Fatalf("guests already seated in the main room must be cleared, got %v", overflow.Assignments)
	}
	if overflow.TableNumber != 5 {
		t.Fatalf("expected overflow number after main tables, got %d", overflow.TableNumber)
	}
	if len(state.Guests) != 2 || state.NextGuestID != 3 {
		t.Fatalf("expected deduplicated guests and raised counter, got %+v next %d", state.Guests, state.NextGuestID)
	}
}

func TestNormalizeClampsBounds(t *testing.T) {
	state := Normalizer{}.Normalize(decode(t, normalizeInputs["out of bounds"]))
	table := state.MainTables[0]
	if table.ID != MaxTableID || table.TableNumber != 1 || table.X != MinX || table.Y != MaxY || table.SeatCount != MaxSeats {
		t.Fatalf("unexpected clamping %+v", table)
	}
	door := state.MainDoorways[0]
	if door.ID != "door-1" || door.Label != "Side" || door.X != MaxX || door.Y != MinDoorY {
		t.Fatalf("unexpected doorway %+v", door)
	}
	if state.MainDoorways[1] != DefaultDoorways()[1] {
		t.Fatalf("missing doorway must fall back to default")
	}
}

func TestDefaultLayout(t *testing.T) {
	state := Normalizer{}.Default()
	if len(state.MainTables) != DefaultMainTables || len(state.OverflowTables) != DefaultOverflow {
		t.Fatalf("unexpected table counts %d/%d", len(state.MainTables), len(state.OverflowTables))
	}
	first := state.OverflowTables[0]
	if first.TableNumber != 13 || first.Name != "Table 13" || first.SeatCount != DefaultSeats {
		t.Fatalf("unexpected first overflow table %+v", first)
	}
	if state.MainTables[0].X != 14 || state.MainTables[0].Y != 16 {
		t.Fatalf("unexpected first position %+v", state.MainTables[0])
	}
	// 12 tables: 4 columns of 3 rows.
	if state.MainTables[3].X != 30 || state.MainTables[3].Y != 16 {
		t.Fatalf("unexpected fourth position %+v", state.MainTables[3])
	}
	if !reflect.DeepEqual(Normalizer{}.Normalize(roundTrip(t, state)), state) {
		t.Fatalf("default state must already be normalized")
	}
}

func TestGuestRefEncodesEmptySeatAsNull(t *testing.T) {
	encoded, err := json.Marshal([]GuestRef{0, 7})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(encoded) != "[null,7]" {
		t.Fatalf("unexpected encoding %s", encoded)
	}
	var decoded []GuestRef
	if err := json.Unmarshal([]byte(`[null,3,"x",-1]`), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, []GuestRef{0, 3, 0, 0}) {
		t.Fatalf("unexpected decoding %v", decoded)
	}
}

func TestGuestLifecycle(t *testing.T) {
	state := Normalizer{}.Default()
	ana, err := state.AddGuest(" Ana ", "Family")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	ben, _ := state.AddGuest("Ben", "")
	if ana.ID != 1 || ben.ID != 2 || state.NextGuestID != 3 {
		t.Fatalf("unexpected ids %d %d next %d", ana.ID, ben.ID, state.NextGuestID)
	}
	if _, err := state.AddGuest("   ", ""); !errors.Is(err, ErrGuestNameMissing) {
		t.Fatalf("expected missing name error, got %v", err)
	}

	if err := state.AssignSeat(RoomMain, 1, 0, ana.ID); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := state.AssignSeat(RoomOverflow, 2, 3, ana.ID); err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	if state.MainTables[0].Assignments[0] != 0 || state.OverflowTables[1].Assignments[3] != GuestRef(ana.ID) {
		t.Fatalf("guest must move to the new seat")
	}
	if got := state.SeatTitle(state.OverflowTables[1], 3); got != "Table 14 Seat 4: Ana" {
		t.Fatalf("unexpected seat title %q", got)
	}
	if err := state.AssignSeat(RoomMain, 1, 10, ben.ID); !errors.Is(err, ErrSeatOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := state.AssignSeat(RoomMain, 1, 0, 42); !errors.Is(err, ErrGuestNotFound) {
		t.Fatalf("expected guest not found, got %v", err)
	}
	if err := state.AssignSeat(RoomMain, 99, 0, ben.ID); !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("expected table not found, got %v", err)
	}

	if err := state.RemoveGuest(ana.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if state.OverflowTables[1].Assignments[3] != 0 {
		t.Fatalf("removed guest must leave their seat")
	}
	carl, _ := state.AddGuest("Carl", "")
	if carl.ID != 3 {
		t.Fatalf("ids must never be reused, got %d", carl.ID)
	}
	if unseated := state.UnseatedGuests(); len(unseated) != 2 {
		t.Fatalf("expected two unseated guests, got %+v", unseated)
	}
}

func TestTableEdits(t *testing.T) {
	state := Normalizer{}.Default()
	guest, _ := state.AddGuest("Dana", "")
	if err := state.AssignSeat(RoomMain, 2, 9, guest.ID); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if err := state.SetSeatCount(RoomMain, 2, 2); err != nil {
		t.Fatalf("seat count failed: %v", err)
	}
	table, _ := state.Table(RoomMain, 2)
	if table.SeatCount != MinSeats || len(table.Assignments) != MinSeats {
		t.Fatalf("seat count must clamp to minimum, got %+v", table)
	}
	if len(state.UnseatedGuests()) != 1 {
		t.Fatalf("guest beyond the new size must be unseated")
	}

	_ = state.RenameTable(RoomMain, 2, "  ")
	if table.Name != "Table 2" {
		t.Fatalf("blank rename must restore default, got %q", table.Name)
	}
	_ = state.SetTableNumber(RoomMain, 2, 20000)
	_ = state.MoveTable(RoomMain, 2, -5, 3)
	_ = state.SetTableNotes(RoomMain, 2, "VIP")
	if table.TableNumber != MaxTableNumber || table.X != MinX || table.Y != MinY || table.Notes != "VIP" {
		t.Fatalf("unexpected table after edits %+v", table)
	}
	if err := state.MoveDoorway("door-2", 50, 99); err != nil {
		t.Fatalf("move doorway failed: %v", err)
	}
	if state.MainDoorways[1].Y != MaxY {
		t.Fatalf("doorway must clamp")
	}
}

func TestRegenerateTablesKeepsExistingTables(t *testing.T) {
	state := Normalizer{}.Default()
	guest, _ := state.AddGuest("Eve", "")
	_ = state.AssignSeat(RoomMain, 1, 0, guest.ID)
	_ = state.RenameTable(RoomMain, 1, "Head Table")

	state.RegenerateTables(RoomMain, 3)
	if len(state.MainTables) != 3 || state.MainTables[0].Name != "Head Table" || state.MainTables[0].Assignments[0] != GuestRef(guest.ID) {
		t.Fatalf("existing table must be kept, got %+v", state.MainTables[0])
	}
	state.RegenerateTables(RoomMain, 500)
	if len(state.MainTables) != MaxTablesPerRoom {
		t.Fatalf("expected table count capped at %d, got %d", MaxTablesPerRoom, len(state.MainTables))
	}
	state.RegenerateTables(RoomOverflow, 0)
	if len(state.OverflowTables) != 0 {
		t.Fatalf("expected overflow room emptied")
	}

	state.Reset()
	if len(state.Guests) != 0 || len(state.MainTables) != DefaultMainTables {
		t.Fatalf("reset must restore the default layout")
	}
}

func TestWriteTableSetupCSV(t *testing.T) {
	state := Normalizer{}.Normalize(decode(t, `{
		"mainTables":[{"id":1,"name":"Head","seatCount":8,"notes":"Speeches, toasts"}],
		"overflowTables":[{"id":1,"seatCount":6}]}`))
	var buffer bytes.Buffer
	if err := WriteTableSetupCSV(&buffer, state); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	want := "Room,Table Number,Table Name,Guest Count,Notes\n" +
		"Main Room,1,Head,8,\"Speeches, toasts\"\n" +
		"Overflow Room,2,Table 1,6,\n"
	if buffer.String() != want {
		t.Fatalf("unexpected csv:\n%s", buffer.String())
	}
}

func TestExportFileNames(t *testing.T) {
	at := time.Date(2025, time.March, 4, 9, 5, 0, 0, time.UTC)
	if got := TableSetupFileName(at); got != "seat-studio-table-setup-20250304-0905.csv" {
		t.Fatalf("unexpected file name %q", got)
	}
	if got := SnapshotFileName(at); got != "seat-studio-snapshot-20250304-0905.json" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func TestSnapshotSummary(t *testing.T) {
	tables, guests := SnapshotSummary(json.RawMessage(`{"tables":[{},{}],"overflowTables":[{}],"guests":[{}]}`))
	if tables != 3 || guests != 1 {
		t.Fatalf("unexpected summary %d tables %d guests", tables, guests)
	}
	if tables, guests := SnapshotSummary(json.RawMessage(`oops`)); tables != 0 || guests != 0 {
		t.Fatalf("corrupt snapshot must summarize as empty")
	}
}

func TestPersistenceRoundTripEqualsNormalize(t *testing.T) {
	profile := Profile()
	store := localstore.NewMemoryStore()
	adapter, err := localstore.NewAdapter(localstore.AdapterConfig[State]{
		Store:      store,
		Key:        profile.StorageKey,
		LegacyKeys: profile.LegacyKeys,
		Normalize:  profile.Normalizer.Normalize,
	})
	if err != nil {
		t.Fatalf("adapter failed: %v", err)
	}
	state := Normalizer{}.Default()
	_, _ = state.AddGuest("Fay", "")
	_ = state.AssignSeat(RoomMain, 4, 2, 1)
	if err := adapter.Save(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, ok := adapter.Load()
	if !ok {
		t.Fatalf("expected state to load")
	}
	if !reflect.DeepEqual(loaded, Normalizer{}.Normalize(roundTrip(t, state))) {
		t.Fatalf("load(save(s)) must equal normalize(s)")
	}

	_ = store.RemoveItem(profile.StorageKey)
	_ = store.SetItem("black-tie-seating-v1", `{"tables":[{"id":1}],"seatsPerTable":7}`)
	legacy, ok := adapter.Load()
	if !ok || len(legacy.MainTables) != 1 || legacy.MainTables[0].SeatCount != 7 {
		t.Fatalf("expected legacy document to load, got %+v", legacy)
	}
}
