package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
)

const maxNamespaceLength = 64

var (
	// ErrInvalidNamespace indicates that a namespace is empty, too long, or
	// contains characters outside [a-z0-9_-].
	ErrInvalidNamespace = errors.New("rooms: invalid namespace")
	// ErrInvalidPayload indicates that a room payload or snapshot is not valid JSON.
	ErrInvalidPayload = errors.New("rooms: invalid json payload")
)

// Namespace separates the rooms of different applications.
type Namespace string

// NewNamespace validates raw input and returns a Namespace.
func NewNamespace(rawInput string) (Namespace, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNamespace)
	}
	if len(trimmed) > maxNamespaceLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNamespace, maxNamespaceLength)
	}
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidNamespace, r)
		}
	}
	return Namespace(trimmed), nil
}

// String returns the underlying namespace.
func (n Namespace) String() string {
	return string(n)
}

// Room is the shared state row of one room, replaced wholesale on every upsert.
type Room struct {
	Namespace       string `gorm:"column:namespace;primaryKey;size:64;not null"`
	Code            string `gorm:"column:code;primaryKey;size:60;not null"`
	PayloadJSON     string `gorm:"column:payload_json;type:text;not null"`
	Origin          string `gorm:"column:origin;size:190;not null;default:''"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Room) TableName() string {
	return "rooms"
}

// Record converts the row to its wire representation.
func (r Room) Record() collab.RoomRecord {
	return collab.RoomRecord{
		Code:      r.Code,
		Payload:   json.RawMessage(r.PayloadJSON),
		UpdatedAt: time.UnixMilli(r.UpdatedAtMillis).UTC(),
		Origin:    r.Origin,
	}
}

// Version is an insert-only snapshot of a room.
type Version struct {
	ID              string `gorm:"column:version_id;primaryKey;size:190;not null"`
	Namespace       string `gorm:"column:namespace;size:64;not null;index:idx_versions_room_created,priority:1"`
	RoomCode        string `gorm:"column:room_code;size:60;not null;index:idx_versions_room_created,priority:2"`
	Label           string `gorm:"column:label;size:190;not null;default:''"`
	SnapshotJSON    string `gorm:"column:snapshot_json;type:text;not null"`
	CreatedAtMillis int64  `gorm:"column:created_at_ms;not null;index:idx_versions_room_created,priority:3"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "room_versions"
}

// Record converts the row to its wire representation.
func (v Version) Record() collab.VersionRecord {
	return collab.VersionRecord{
		ID:        v.ID,
		RoomCode:  v.RoomCode,
		Label:     v.Label,
		Snapshot:  json.RawMessage(v.SnapshotJSON),
		CreatedAt: time.UnixMilli(v.CreatedAtMillis).UTC(),
	}
}

// VersionInput describes a snapshot submitted by a client. An empty ID is
// filled in by the service, which also stamps the creation time.
type VersionInput struct {
	ID       string
	Label    string
	Snapshot json.RawMessage
}
