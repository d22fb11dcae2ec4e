package localstore

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("localstore: database handle is required")

// Entry is one persisted local-storage item.
type Entry struct {
	Key             string `gorm:"column:entry_key;primaryKey;size:190;not null"`
	Value           string `gorm:"column:entry_value;type:text;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "local_entries"
}

// SQLiteStore persists entries in a gorm-managed table. The schema is
// created by database.OpenLocalSQLite.
type SQLiteStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSQLiteStore wraps an opened database.
func NewSQLiteStore(db *gorm.DB, clock func() time.Time) (*SQLiteStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if clock == nil {
		clock = time.Now
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

func (s *SQLiteStore) GetItem(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	var entry Entry
	err := s.db.Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *SQLiteStore) SetItem(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	entry := Entry{
		Key:             key,
		Value:           value,
		UpdatedAtMillis: s.clock().UTC().UnixMilli(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at_ms"}),
	}).Create(&entry).Error
}

func (s *SQLiteStore) RemoveItem(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.db.Where("entry_key = ?", key).Delete(&Entry{}).Error
}
