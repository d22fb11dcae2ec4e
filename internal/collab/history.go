package collab

import (
	"encoding/json"
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/localstore"
)

// DefaultHistoryLimit bounds both local and remote snapshot history.
const DefaultHistoryLimit = 25

// Snapshot is an immutable copy of state captured on demand.
type Snapshot struct {
	ID      string          `json:"id"`
	Label   string          `json:"label"`
	SavedAt time.Time       `json:"savedAt"`
	Payload json.RawMessage `json:"snapshot"`
}

// LocalHistory keeps snapshots under a single local-storage key, newest first.
type LocalHistory struct {
	store localstore.Store
	key   string
	limit int
}

// NewLocalHistory binds a history list to store and key. A non-positive
// limit falls back to DefaultHistoryLimit.
func NewLocalHistory(store localstore.Store, key string, limit int) *LocalHistory {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &LocalHistory{store: store, key: key, limit: limit}
}

// Load returns the stored list. Missing or corrupt documents yield an empty list.
func (h *LocalHistory) Load() []Snapshot {
	if h == nil || h.store == nil || h.key == "" {
		return nil
	}
	raw, ok, err := h.store.GetItem(h.key)
	if err != nil || !ok || raw == "" {
		return nil
	}
	var entries []Snapshot
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil
	}
	if len(entries) > h.limit {
		entries = entries[:h.limit]
	}
	return entries
}

// Save overwrites the stored list, truncated to the limit.
func (h *LocalHistory) Save(entries []Snapshot) error {
	if h == nil || h.store == nil || h.key == "" {
		return nil
	}
	if len(entries) > h.limit {
		entries = entries[:h.limit]
	}
	if entries == nil {
		entries = []Snapshot{}
	}
	encoded, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return h.store.SetItem(h.key, string(encoded))
}

// Prepend stores entry as the newest snapshot and evicts the oldest beyond the limit.
func (h *LocalHistory) Prepend(entry Snapshot) ([]Snapshot, error) {
	existing := h.Load()
	next := make([]Snapshot, 0, len(existing)+1)
	next = append(next, entry)
	next = append(next, existing...)
	if h != nil && len(next) > h.limit {
		next = next[:h.limit]
	}
	return next, h.Save(next)
}

// Limit reports the configured bound.
func (h *LocalHistory) Limit() int {
	if h == nil {
		return DefaultHistoryLimit
	}
	return h.limit
}
