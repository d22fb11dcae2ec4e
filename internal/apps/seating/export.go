package seating

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var tableSetupHeader = []string{"Room", "Table Number", "Table Name", "Guest Count", "Notes"}

// WriteTableSetupCSV writes one row per table, main room first.
func WriteTableSetupCSV(w io.Writer, state State) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tableSetupHeader); err != nil {
		return err
	}
	for _, room := range []RoomKind{RoomMain, RoomOverflow} {
		for _, table := range state.Tables(room) {
			row := []string{
				room.Label(),
				strconv.FormatInt(state.DisplayTableNumber(room, table), 10),
				table.Name,
				strconv.FormatInt(table.SeatCount, 10),
				table.Notes,
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// FileTimestamp formats t as YYYYMMDD-HHMM in its own location.
func FileTimestamp(t time.Time) string {
	return t.Format("20060102-1504")
}

// TableSetupFileName names a CSV export created at t.
func TableSetupFileName(t time.Time) string {
	return fmt.Sprintf("seat-studio-table-setup-%s.csv", FileTimestamp(t))
}

// SnapshotFileName names a JSON download of a snapshot saved at t.
func SnapshotFileName(t time.Time) string {
	return fmt.Sprintf("seat-studio-snapshot-%s.json", FileTimestamp(t))
}
