package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/roomsync/internal/roomcode"
)

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return fmt.Sprintf("version-%02d", s.next), nil
}

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:roomsync_rooms_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Room{}, &Version{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &steppingClock{now: time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Database:     db,
		Clock:        clock.Now,
		IDProvider:   &sequenceIDs{},
		HistoryLimit: 25,
	})
	if err != nil {
		t.Fatalf("failed to construct rooms service: %v", err)
	}
	return service, db
}

func mustCode(t *testing.T, raw string) roomcode.Code {
	t.Helper()
	code, err := roomcode.New(raw)
	if err != nil {
		t.Fatalf("unexpected room code error: %v", err)
	}
	return code
}

func mustNamespace(t *testing.T, raw string) Namespace {
	t.Helper()
	namespace, err := NewNamespace(raw)
	if err != nil {
		t.Fatalf("unexpected namespace error: %v", err)
	}
	return namespace
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{IDProvider: &sequenceIDs{}})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "rooms.service.new.missing_database" {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestNewNamespace(t *testing.T) {
	for _, raw := range []string{"seat_studio", "event-todo", " gym_builder "} {
		if _, err := NewNamespace(raw); err != nil {
			t.Fatalf("expected %q to be valid: %v", raw, err)
		}
	}
	for _, raw := range []string{"", "Seat", "a/b", "room code"} {
		if _, err := NewNamespace(raw); !errors.Is(err, ErrInvalidNamespace) {
			t.Fatalf("expected %q to be rejected, got %v", raw, err)
		}
	}
}

func TestUpsertRoomReplacesPayload(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	namespace := mustNamespace(t, "seat_studio")
	code := mustCode(t, "acme-gala")

	if _, found, err := service.GetRoom(ctx, namespace, code); err != nil || found {
		t.Fatalf("expected missing room, found=%v err=%v", found, err)
	}

	first, err := service.UpsertRoom(ctx, namespace, code, json.RawMessage(`{"guests":[]}`), "client-a")
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	second, err := service.UpsertRoom(ctx, namespace, code, json.RawMessage(`{"guests":[{"id":1}]}`), "client-b")
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if second.UpdatedAtMillis <= first.UpdatedAtMillis {
		t.Fatalf("expected updated_at to advance")
	}

	stored, found, err := service.GetRoom(ctx, namespace, code)
	if err != nil || !found {
		t.Fatalf("expected stored room, found=%v err=%v", found, err)
	}
	if stored.PayloadJSON != `{"guests":[{"id":1}]}` || stored.Origin != "client-b" {
		t.Fatalf("expected last write to win, got %+v", stored)
	}

	var count int64
	if err := db.Model(&Room{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rooms: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row per room, got %d", count)
	}

	record := stored.Record()
	if record.Code != "acme-gala" || string(record.Payload) != stored.PayloadJSON {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestNamespacesIsolateRooms(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	code := mustCode(t, "main")

	if _, err := service.UpsertRoom(ctx, mustNamespace(t, "seat_studio"), code, json.RawMessage(`{"a":1}`), ""); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if _, found, _ := service.GetRoom(ctx, mustNamespace(t, "event_todo"), code); found {
		t.Fatalf("rooms must not leak across namespaces")
	}
}

func TestUpsertRoomRejectsInvalidJSON(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.UpsertRoom(context.Background(), mustNamespace(t, "seat_studio"), mustCode(t, "main"), json.RawMessage(`{"broken"`), "")
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "rooms.upsert_room.invalid_payload" {
		t.Fatalf("expected invalid payload error, got %v", err)
	}
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected error to wrap ErrInvalidPayload")
	}
}

func TestVersionsNewestFirstWithLimit(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	namespace := mustNamespace(t, "event_todo")
	code := mustCode(t, "acme-gala")

	for index := 0; index < 30; index++ {
		input := VersionInput{Label: fmt.Sprintf("Snapshot %d", index), Snapshot: json.RawMessage(`{}`)}
		if _, err := service.InsertVersion(ctx, namespace, code, input); err != nil {
			t.Fatalf("unexpected insert error: %v", err)
		}
	}
	if _, err := service.InsertVersion(ctx, namespace, mustCode(t, "other"), VersionInput{Snapshot: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	versions, err := service.ListVersions(ctx, namespace, code, 0)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(versions) != 25 {
		t.Fatalf("expected history limit of 25, got %d", len(versions))
	}
	if versions[0].Label != "Snapshot 29" || versions[24].Label != "Snapshot 5" {
		t.Fatalf("expected newest first, got %q .. %q", versions[0].Label, versions[24].Label)
	}

	limited, err := service.ListVersions(ctx, namespace, code, 3)
	if err != nil || len(limited) != 3 {
		t.Fatalf("expected 3 versions, got %d err=%v", len(limited), err)
	}

	cleared, err := service.ClearVersions(ctx, namespace, code)
	if err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}
	if cleared != 30 {
		t.Fatalf("expected 30 versions cleared, got %d", cleared)
	}
	remaining, _ := service.ListVersions(ctx, namespace, mustCode(t, "other"), 0)
	if len(remaining) != 1 {
		t.Fatalf("clearing one room must not touch another, got %d", len(remaining))
	}
}

func TestInsertVersionKeepsClientIdentity(t *testing.T) {
	service, _ := newTestService(t)
	version, err := service.InsertVersion(context.Background(), mustNamespace(t, "gym_builder"), mustCode(t, "main"), VersionInput{
		ID:       "client-version",
		Label:    "  Before edits ",
		Snapshot: json.RawMessage(`{"workoutType":"upper"}`),
	})
	if err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	record := version.Record()
	if record.ID != "client-version" || record.Label != "Before edits" {
		t.Fatalf("unexpected record %+v", record)
	}
	if !record.CreatedAt.Equal(time.Date(2025, time.May, 1, 12, 0, 1, 0, time.UTC)) {
		t.Fatalf("expected created_at stamped by the relay clock, got %v", record.CreatedAt)
	}
}

func TestInsertVersionOrdersByRelayClock(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	namespace := mustNamespace(t, "seat_studio")
	code := mustCode(t, "main")

	for _, id := range []string{"fast-clock", "slow-clock"} {
		if _, err := service.InsertVersion(ctx, namespace, code, VersionInput{
			ID:       id,
			Snapshot: json.RawMessage(`{"guests":[]}`),
		}); err != nil {
			t.Fatalf("unexpected insert error: %v", err)
		}
	}

	versions, err := service.ListVersions(ctx, namespace, code, 0)
	if err != nil || len(versions) != 2 {
		t.Fatalf("expected two versions, got %d err=%v", len(versions), err)
	}
	if versions[0].ID != "slow-clock" {
		t.Fatalf("expected the latest submission listed first, got %q", versions[0].ID)
	}
}
