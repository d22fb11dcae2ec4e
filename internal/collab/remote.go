package collab

import (
	"context"
	"encoding/json"
	"time"
)

// EventType names a change notification delivered by a Remote subscription.
type EventType string

const (
	// EventSubscribed confirms that the subscription is live.
	EventSubscribed EventType = "subscribed"
	// EventRoomChange carries the new room record after an upsert.
	EventRoomChange EventType = "room-change"
	// EventVersionChange signals that the room's version history changed.
	EventVersionChange EventType = "version-change"
	// EventResync is emitted after a dropped subscription is re-established;
	// changes may have been missed in between.
	EventResync EventType = "resync"
)

// RoomRecord is the shared remote state record of one room.
type RoomRecord struct {
	Code      string          `json:"code"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
	Origin    string          `json:"origin,omitempty"`
}

// VersionRecord is one row of a room's insert-only snapshot history.
type VersionRecord struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"room_code"`
	Label     string          `json:"label"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
}

// RemoteEvent is a change notification.
type RemoteEvent struct {
	Type EventType   `json:"type"`
	Room *RoomRecord `json:"room,omitempty"`
}

// Subscription is a live change stream.
type Subscription interface {
	Close() error
}

// Remote is the shared backend a Controller mirrors its state into. A Remote
// is bound to one application namespace.
type Remote interface {
	FetchRoom(ctx context.Context, code string) (RoomRecord, bool, error)
	UpsertRoom(ctx context.Context, record RoomRecord) error
	InsertVersion(ctx context.Context, version VersionRecord) error
	ListVersions(ctx context.Context, code string, limit int) ([]VersionRecord, error)
	ClearVersions(ctx context.Context, code string) error
	// Subscribe delivers room and version events for code until ctx is done
	// or the subscription is closed. handler runs on the subscription goroutine.
	Subscribe(ctx context.Context, code string, handler func(RemoteEvent)) (Subscription, error)
}
