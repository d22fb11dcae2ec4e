package database

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roomsync/internal/localstore"
)

func TestOpenLocalSQLiteCreatesEntries(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "local.db")

	database, err := OpenLocalSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open local database: %v", err)
	}

	store, err := localstore.NewSQLiteStore(database, nil)
	if err != nil {
		testContext.Fatalf("failed to build store: %v", err)
	}
	if err := store.SetItem("seating-chart", `{"guests":[]}`); err != nil {
		testContext.Fatalf("failed to set item: %v", err)
	}
	value, found, err := store.GetItem("seating-chart")
	if err != nil || !found || value != `{"guests":[]}` {
		testContext.Fatalf("unexpected item value=%q found=%v err=%v", value, found, err)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLiteMigratesRelaySchema(testContext *testing.T) {
	database, err := OpenSQLite(filepath.Join(testContext.TempDir(), "relay.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open relay database: %v", err)
	}
	for _, table := range []string{"rooms", "room_versions"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s", table)
		}
	}
}
