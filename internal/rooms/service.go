// Package rooms stores the relay's shared room state and snapshot history.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/roomsync/internal/ids"
	"github.com/MarcoPoloResearchLab/roomsync/internal/roomcode"
)

const (
	// DefaultHistoryLimit caps ListVersions when no limit is configured.
	DefaultHistoryLimit = 25
	maxLabelLength      = 190
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "rooms.service.new"
	opGetRoom       = "rooms.get_room"
	opUpsertRoom    = "rooms.upsert_room"
	opInsertVersion = "rooms.insert_version"
	opListVersions  = "rooms.list_versions"
	opClearVersions = "rooms.clear_versions"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   ids.Provider
	Logger       *zap.Logger
	HistoryLimit int
}

type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	idProvider   ids.Provider
	logger       *zap.Logger
	historyLimit int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	return &Service{
		db:           cfg.Database,
		clock:        clock,
		idProvider:   cfg.IDProvider,
		logger:       logger,
		historyLimit: historyLimit,
	}, nil
}

// HistoryLimit is the maximum number of versions ListVersions returns.
func (s *Service) HistoryLimit() int {
	return s.historyLimit
}

// GetRoom loads a room. The boolean is false when the room has never been written.
func (s *Service) GetRoom(ctx context.Context, namespace Namespace, code roomcode.Code) (Room, bool, error) {
	var room Room
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND code = ?", namespace.String(), code.String()).
		Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Room{}, false, nil
	}
	if err != nil {
		s.logError(opGetRoom, "query_failed", err, roomFields(namespace, code)...)
		return Room{}, false, newServiceError(opGetRoom, "query_failed", err)
	}
	return room, true, nil
}

// UpsertRoom replaces the room's payload. The relay clock stamps updated_at.
func (s *Service) UpsertRoom(ctx context.Context, namespace Namespace, code roomcode.Code, payload json.RawMessage, origin string) (Room, error) {
	if !json.Valid(payload) {
		return Room{}, newServiceError(opUpsertRoom, "invalid_payload", ErrInvalidPayload)
	}

	room := Room{
		Namespace:       namespace.String(),
		Code:            code.String(),
		PayloadJSON:     string(payload),
		Origin:          truncate(strings.TrimSpace(origin), maxLabelLength),
		UpdatedAtMillis: s.clock().UTC().UnixMilli(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload_json", "origin", "updated_at_ms"}),
	}).Create(&room).Error
	if err != nil {
		s.logError(opUpsertRoom, "upsert_failed", err, roomFields(namespace, code)...)
		return Room{}, newServiceError(opUpsertRoom, "upsert_failed", err)
	}
	return room, nil
}

// InsertVersion appends a snapshot to the room's history.
func (s *Service) InsertVersion(ctx context.Context, namespace Namespace, code roomcode.Code, input VersionInput) (Version, error) {
	if !json.Valid(input.Snapshot) {
		return Version{}, newServiceError(opInsertVersion, "invalid_payload", ErrInvalidPayload)
	}

	versionID := strings.TrimSpace(input.ID)
	if versionID == "" {
		generated, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opInsertVersion, "id_generation_failed", err, roomFields(namespace, code)...)
			return Version{}, newServiceError(opInsertVersion, "id_generation_failed", err)
		}
		versionID = generated
	}
	// Client clocks drift, so history order follows the relay clock only.
	createdAt := s.clock()

	version := Version{
		ID:              versionID,
		Namespace:       namespace.String(),
		RoomCode:        code.String(),
		Label:           truncate(strings.TrimSpace(input.Label), maxLabelLength),
		SnapshotJSON:    string(input.Snapshot),
		CreatedAtMillis: createdAt.UTC().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&version).Error; err != nil {
		s.logError(opInsertVersion, "insert_failed", err, roomFields(namespace, code)...)
		return Version{}, newServiceError(opInsertVersion, "insert_failed", err)
	}
	return version, nil
}

// ListVersions returns the room's snapshots newest first. A limit outside
// (0, HistoryLimit] is clamped to HistoryLimit.
func (s *Service) ListVersions(ctx context.Context, namespace Namespace, code roomcode.Code, limit int) ([]Version, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	var versions []Version
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND room_code = ?", namespace.String(), code.String()).
		Order("created_at_ms DESC").
		Order("version_id DESC").
		Limit(limit).
		Find(&versions).Error
	if err != nil {
		s.logError(opListVersions, "query_failed", err, roomFields(namespace, code)...)
		return nil, newServiceError(opListVersions, "query_failed", err)
	}
	return versions, nil
}

// ClearVersions deletes the room's history and reports how many rows went.
func (s *Service) ClearVersions(ctx context.Context, namespace Namespace, code roomcode.Code) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("namespace = ? AND room_code = ?", namespace.String(), code.String()).
		Delete(&Version{})
	if result.Error != nil {
		s.logError(opClearVersions, "delete_failed", result.Error, roomFields(namespace, code)...)
		return 0, newServiceError(opClearVersions, "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("rooms service error", attrs...)
}

func roomFields(namespace Namespace, code roomcode.Code) []zap.Field {
	return []zap.Field{
		zap.String("namespace", namespace.String()),
		zap.String("room", code.String()),
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
