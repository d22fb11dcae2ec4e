// Package collab implements the local-first sync controller shared by every
// roomsync application.
//
// A Controller owns one application state value. Local edits are normalized,
// persisted and, while connected to a room, uploaded after a debounce window
// with last-write-wins semantics. Remote changes replace the local state
// wholesale without scheduling an upload, which breaks echo loops between
// connected clients.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roomsync/internal/ids"
	"github.com/MarcoPoloResearchLab/roomsync/internal/roomcode"
)

var (
	// ErrNoRemote indicates that the controller was built without a Remote.
	ErrNoRemote = errors.New("collab: remote is not configured")
	// ErrNotConnected indicates that an operation requires a connected room.
	ErrNotConnected = errors.New("collab: not connected")
	// ErrSnapshotNotFound indicates that no snapshot carries the requested id.
	ErrSnapshotNotFound = errors.New("collab: snapshot not found")

	errMissingNormalizer  = errors.New("collab: normalizer is required")
	errMissingPersistence = errors.New("collab: persistence is required")
)

const (
	defaultDebounce       = 200 * time.Millisecond
	defaultRequestTimeout = 10 * time.Second
	defaultSnapshotLabel  = "Snapshot"
)

// Normalizer rebuilds a valid state from arbitrary decoded input.
type Normalizer[S any] interface {
	Normalize(raw any) S
	Default() S
}

// Persistence saves and loads the local state document.
type Persistence[S any] interface {
	Save(state S) error
	Load() (S, bool)
}

// Phase is the debounce and echo-suppression state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePendingUpload
	PhaseApplyingRemote
)

func (p Phase) String() string {
	switch p {
	case PhasePendingUpload:
		return "pending-upload"
	case PhaseApplyingRemote:
		return "applying-remote"
	default:
		return "idle"
	}
}

// ChangeSource tells listeners what produced a state change.
type ChangeSource string

const (
	SourceLocal   ChangeSource = "local"
	SourceRemote  ChangeSource = "remote"
	SourceRestore ChangeSource = "restore"
)

// Listener observes state changes. It runs outside the controller lock and
// may call back into the controller.
type Listener[S any] func(state S, source ChangeSource)

// Options carries the collaborators shared by every application profile.
type Options struct {
	Remote         Remote
	Clock          clockwork.Clock
	Logger         *zap.Logger
	IDProvider     ids.Provider
	OnStatus       func(message string)
	RequestTimeout time.Duration
	// Origin identifies this controller's writes so their echoes are skipped.
	Origin string
}

// Config wires a Controller.
type Config[S any] struct {
	Normalizer  Normalizer[S]
	Persistence Persistence[S]
	History     *LocalHistory
	Debounce    time.Duration
	Options
}

// Controller is the State Store and Remote Sync Channel of one application.
type Controller[S any] struct {
	normalizer  Normalizer[S]
	persistence Persistence[S]
	history     *LocalHistory
	remote      Remote
	clock       clockwork.Clock
	logger      *zap.Logger
	idProvider  ids.Provider
	onStatus    func(string)
	debounce    time.Duration
	timeout     time.Duration
	origin      string

	mu            sync.Mutex
	state         S
	phase         Phase
	status        string
	timer         clockwork.Timer
	timerGen      uint64
	session       uint64
	connected     bool
	room          roomcode.Code
	connCtx       context.Context
	cancelConn    context.CancelFunc
	subscription  Subscription
	remoteHistory []Snapshot
	listeners     map[int64]Listener[S]
	nextListener  int64
}

// New builds a controller and loads the persisted state, falling back to the
// normalizer's default when nothing usable is stored.
func New[S any](cfg Config[S]) (*Controller[S], error) {
	if cfg.Normalizer == nil {
		return nil, errMissingNormalizer
	}
	if cfg.Persistence == nil {
		return nil, errMissingPersistence
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	origin := strings.TrimSpace(cfg.Origin)
	if origin == "" {
		origin = ids.MustNewID(idProvider)
	}
	history := cfg.History
	if history == nil {
		history = NewLocalHistory(nil, "", DefaultHistoryLimit)
	}

	controller := &Controller[S]{
		normalizer:  cfg.Normalizer,
		persistence: cfg.Persistence,
		history:     history,
		remote:      cfg.Remote,
		clock:       clock,
		logger:      logger,
		idProvider:  idProvider,
		onStatus:    cfg.OnStatus,
		debounce:    debounce,
		timeout:     timeout,
		origin:      origin,
		listeners:   make(map[int64]Listener[S]),
	}
	if loaded, ok := cfg.Persistence.Load(); ok {
		controller.state = loaded
	} else {
		controller.state = cfg.Normalizer.Default()
	}
	return controller, nil
}

// State returns a deep copy of the current state.
func (c *Controller[S]) State() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cloneLocked()
}

// Mutate applies fn to a copy of the state, normalizes the result, persists it
// and schedules an upload. fn runs under the controller lock and must not call
// back into the controller. It returns the new state.
func (c *Controller[S]) Mutate(fn func(state *S)) S {
	c.mu.Lock()
	working := c.cloneLocked()
	fn(&working)
	result, saveErr := c.commitLocked(c.normalizeValue(working))
	c.mu.Unlock()
	c.afterCommit(result, saveErr, SourceLocal)
	return result
}

// Replace swaps in a whole new state as a local edit.
func (c *Controller[S]) Replace(next S) S {
	return c.replace(c.normalizeValue(next), SourceLocal)
}

func (c *Controller[S]) replace(next S, source ChangeSource) S {
	c.mu.Lock()
	result, saveErr := c.commitLocked(next)
	c.mu.Unlock()
	c.afterCommit(result, saveErr, source)
	return result
}

func (c *Controller[S]) commitLocked(next S) (S, error) {
	c.state = next
	result := c.cloneLocked()
	saveErr := c.persistLocked()
	c.scheduleUploadLocked()
	return result, saveErr
}

func (c *Controller[S]) afterCommit(result S, saveErr error, source ChangeSource) {
	if saveErr != nil {
		c.reportStatus("Local save failed: " + saveErr.Error())
	}
	c.notify(result, source)
}

// Subscribe registers a listener and returns a function that removes it.
func (c *Controller[S]) Subscribe(listener Listener[S]) func() {
	if listener == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = listener
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Phase reports the current debounce phase.
func (c *Controller[S]) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Status returns the most recent status message.
func (c *Controller[S]) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connected reports whether a room subscription is live.
func (c *Controller[S]) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Room returns the connected room code, or "" when local-only.
func (c *Controller[S]) Room() roomcode.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ""
	}
	return c.room
}

// Origin returns the identifier stamped on this controller's uploads.
func (c *Controller[S]) Origin() string {
	return c.origin
}

// Connect joins a room. The remote record is applied when present; otherwise
// the room is initialized from the local state. The controller is marked
// connected only once the change subscription is live. On failure the
// controller stays local-only.
func (c *Controller[S]) Connect(ctx context.Context, rawCode string) error {
	if c.remote == nil {
		return ErrNoRemote
	}
	code, err := roomcode.New(rawCode)
	if err != nil {
		return err
	}
	c.Disconnect()

	c.mu.Lock()
	c.session++
	session := c.session
	c.mu.Unlock()
	c.reportStatus(fmt.Sprintf("Connecting to room %q...", code))

	connCtx, cancel := context.WithCancel(ctx)
	if err := c.loadOrInitialize(connCtx, code, session); err != nil {
		cancel()
		return c.connectFailed(code, err)
	}
	if err := c.refreshRemoteHistory(connCtx, code, session); err != nil {
		c.logger.Warn("history fetch failed", zap.String("room", code.String()), zap.Error(err))
	}
	subscription, err := c.remote.Subscribe(connCtx, code.String(), func(event RemoteEvent) {
		c.handleEvent(connCtx, code, session, event)
	})
	if err != nil {
		cancel()
		return c.connectFailed(code, err)
	}

	c.mu.Lock()
	if session != c.session {
		c.mu.Unlock()
		_ = subscription.Close()
		cancel()
		return fmt.Errorf("collab: connect %s: %w", code, context.Canceled)
	}
	c.connected = true
	c.room = code
	c.connCtx = connCtx
	c.cancelConn = cancel
	c.subscription = subscription
	c.mu.Unlock()

	c.logger.Info("room connected", zap.String("room", code.String()), zap.String("origin", c.origin))
	c.reportStatus(fmt.Sprintf("Live in room %q", code))
	return nil
}

func (c *Controller[S]) connectFailed(code roomcode.Code, err error) error {
	c.logger.Warn("room connect failed", zap.String("room", code.String()), zap.Error(err))
	c.reportStatus("Connection failed: " + err.Error())
	return fmt.Errorf("collab: connect %s: %w", code, err)
}

func (c *Controller[S]) loadOrInitialize(ctx context.Context, code roomcode.Code, session uint64) error {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	record, found, err := c.remote.FetchRoom(fetchCtx, code.String())
	cancel()
	if err != nil {
		return err
	}
	if found && hasPayload(record.Payload) {
		c.applyRemote(record.Payload, session)
		return nil
	}

	c.mu.Lock()
	initial, err := c.roomRecordLocked(code)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	upsertCtx, cancelUpsert := context.WithTimeout(ctx, c.timeout)
	defer cancelUpsert()
	return c.remote.UpsertRoom(upsertCtx, initial)
}

// Disconnect closes the subscription and returns to local-only mode. A pending
// upload is dropped; call Flush first to send it.
func (c *Controller[S]) Disconnect() {
	c.mu.Lock()
	c.session++
	c.stopTimerLocked()
	if c.phase == PhasePendingUpload {
		c.phase = PhaseIdle
	}
	subscription := c.subscription
	cancel := c.cancelConn
	wasConnected := c.connected
	room := c.room
	c.connected = false
	c.subscription = nil
	c.connCtx = nil
	c.cancelConn = nil
	c.remoteHistory = nil
	c.mu.Unlock()

	if subscription != nil {
		if err := subscription.Close(); err != nil {
			c.logger.Debug("subscription close failed", zap.Error(err))
		}
	}
	if cancel != nil {
		cancel()
	}
	if wasConnected {
		c.logger.Info("room disconnected", zap.String("room", room.String()))
	}
}

// Close flushes any pending upload and disconnects.
func (c *Controller[S]) Close(ctx context.Context) error {
	err := c.Flush(ctx)
	c.Disconnect()
	return err
}

// Flush sends a pending upload immediately instead of waiting for the timer.
func (c *Controller[S]) Flush(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected || c.phase != PhasePendingUpload {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.phase = PhaseIdle
	record, err := c.roomRecordLocked(c.room)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.upload(ctx, record)
}

func (c *Controller[S]) scheduleUploadLocked() {
	if !c.connected || c.phase == PhaseApplyingRemote {
		return
	}
	c.stopTimerLocked()
	generation := c.timerGen
	c.phase = PhasePendingUpload
	c.timer = c.clock.AfterFunc(c.debounce, func() {
		c.fireUpload(generation)
	})
}

func (c *Controller[S]) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller[S]) fireUpload(generation uint64) {
	c.mu.Lock()
	if generation != c.timerGen || c.phase != PhasePendingUpload || !c.connected {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.phase = PhaseIdle
	ctx := c.connCtx
	record, err := c.roomRecordLocked(c.room)
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("room encode failed", zap.Error(err))
		return
	}
	if err := c.upload(ctx, record); err != nil && ctx.Err() != nil {
		c.logger.Debug("room upload aborted by disconnect", zap.String("room", record.Code))
	}
}

func (c *Controller[S]) upload(ctx context.Context, record RoomRecord) error {
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.remote.UpsertRoom(requestCtx, record); err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.logger.Warn("room upload failed", zap.String("room", record.Code), zap.Error(err))
		c.reportStatus("Sync issue: " + err.Error())
		return err
	}
	c.logger.Debug("room uploaded", zap.String("room", record.Code), zap.Int("bytes", len(record.Payload)))
	return nil
}

func (c *Controller[S]) roomRecordLocked(code roomcode.Code) (RoomRecord, error) {
	payload, err := json.Marshal(c.state)
	if err != nil {
		return RoomRecord{}, err
	}
	return RoomRecord{
		Code:      code.String(),
		Payload:   payload,
		UpdatedAt: c.clock.Now().UTC(),
		Origin:    c.origin,
	}, nil
}

func (c *Controller[S]) handleEvent(ctx context.Context, code roomcode.Code, session uint64, event RemoteEvent) {
	switch event.Type {
	case EventRoomChange:
		if event.Room == nil || !hasPayload(event.Room.Payload) {
			return
		}
		if event.Room.Code != "" && event.Room.Code != code.String() {
			return
		}
		if event.Room.Origin != "" && event.Room.Origin == c.origin {
			return
		}
		c.applyRemote(event.Room.Payload, session)
	case EventVersionChange:
		if err := c.refreshRemoteHistory(ctx, code, session); err != nil {
			c.logger.Warn("history fetch failed", zap.String("room", code.String()), zap.Error(err))
		}
	case EventResync:
		c.resync(ctx, code, session)
	}
}

func (c *Controller[S]) resync(ctx context.Context, code roomcode.Code, session uint64) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	record, found, err := c.remote.FetchRoom(fetchCtx, code.String())
	cancel()
	if err != nil {
		c.logger.Warn("room resync failed", zap.String("room", code.String()), zap.Error(err))
		c.reportStatus("Sync issue: " + err.Error())
		return
	}
	if found && hasPayload(record.Payload) && record.Origin != c.origin {
		c.applyRemote(record.Payload, session)
	}
	if err := c.refreshRemoteHistory(ctx, code, session); err != nil {
		c.logger.Warn("history fetch failed", zap.String("room", code.String()), zap.Error(err))
	}
}

// applyRemote replaces the state with a remote payload. Uploads stay
// suppressed until listeners have been notified.
func (c *Controller[S]) applyRemote(payload json.RawMessage, session uint64) bool {
	next, ok := c.normalizeBytes(payload)
	if !ok {
		c.logger.Warn("remote payload ignored", zap.Int("bytes", len(payload)))
		return false
	}

	c.mu.Lock()
	if session != c.session {
		c.mu.Unlock()
		return false
	}
	c.stopTimerLocked()
	c.phase = PhaseApplyingRemote
	c.state = next
	result := c.cloneLocked()
	saveErr := c.persistLocked()
	c.mu.Unlock()

	if saveErr != nil {
		c.reportStatus("Local save failed: " + saveErr.Error())
	}
	c.notify(result, SourceRemote)

	c.mu.Lock()
	if c.phase == PhaseApplyingRemote {
		c.phase = PhaseIdle
	}
	c.mu.Unlock()
	return true
}

// CreateSnapshot captures the current state. While connected the snapshot is
// inserted into the room's remote history; otherwise it is prepended to the
// local history, evicting the oldest entry beyond the limit.
func (c *Controller[S]) CreateSnapshot(ctx context.Context, label string) (Snapshot, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = defaultSnapshotLabel
	}

	c.mu.Lock()
	payload, err := json.Marshal(c.state)
	connected := c.connected
	code := c.room
	session := c.session
	c.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		ID:      ids.MustNewID(c.idProvider),
		Label:   label,
		SavedAt: c.clock.Now().UTC(),
		Payload: payload,
	}

	if connected {
		requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.remote.InsertVersion(requestCtx, VersionRecord{
			ID:        snapshot.ID,
			RoomCode:  code.String(),
			Label:     snapshot.Label,
			Snapshot:  snapshot.Payload,
			CreatedAt: snapshot.SavedAt,
		})
		cancel()
		if err != nil {
			c.logger.Warn("snapshot save failed", zap.String("room", code.String()), zap.Error(err))
			c.reportStatus("Snapshot issue: " + err.Error())
			return Snapshot{}, err
		}
		if err := c.refreshRemoteHistory(ctx, code, session); err != nil {
			c.logger.Warn("history fetch failed", zap.String("room", code.String()), zap.Error(err))
		}
		return snapshot, nil
	}

	if _, err := c.history.Prepend(snapshot); err != nil {
		c.logger.Warn("local snapshot save failed", zap.Error(err))
		c.reportStatus("Snapshot issue: " + err.Error())
		return Snapshot{}, err
	}
	return snapshot, nil
}

// History lists snapshots newest first: the room's history while connected,
// the local list otherwise.
func (c *Controller[S]) History() []Snapshot {
	c.mu.Lock()
	if c.connected {
		entries := append([]Snapshot(nil), c.remoteHistory...)
		c.mu.Unlock()
		return entries
	}
	c.mu.Unlock()
	return c.history.Load()
}

// RefreshHistory refetches the room's history.
func (c *Controller[S]) RefreshHistory(ctx context.Context) error {
	c.mu.Lock()
	connected := c.connected
	code := c.room
	session := c.session
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	return c.refreshRemoteHistory(ctx, code, session)
}

func (c *Controller[S]) refreshRemoteHistory(ctx context.Context, code roomcode.Code, session uint64) error {
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	versions, err := c.remote.ListVersions(requestCtx, code.String(), c.history.Limit())
	if err != nil {
		return err
	}
	entries := make([]Snapshot, 0, len(versions))
	for _, version := range versions {
		label := strings.TrimSpace(version.Label)
		if label == "" {
			label = defaultSnapshotLabel
		}
		entries = append(entries, Snapshot{
			ID:      version.ID,
			Label:   label,
			SavedAt: version.CreatedAt,
			Payload: version.Snapshot,
		})
	}
	c.mu.Lock()
	if session == c.session {
		c.remoteHistory = entries
	}
	c.mu.Unlock()
	return nil
}

// RestoreSnapshot replaces the state with a snapshot from History. The restore
// counts as a local edit and is uploaded when connected.
func (c *Controller[S]) RestoreSnapshot(id string) (S, error) {
	for _, entry := range c.History() {
		if entry.ID != id {
			continue
		}
		next, ok := c.normalizeBytes(entry.Payload)
		if !ok {
			next = c.normalizer.Normalize(nil)
		}
		return c.replace(next, SourceRestore), nil
	}
	var zero S
	return zero, ErrSnapshotNotFound
}

// ClearHistory deletes the room's history while connected, the local list otherwise.
func (c *Controller[S]) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	connected := c.connected
	code := c.room
	c.mu.Unlock()

	if !connected {
		return c.history.Save(nil)
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.remote.ClearVersions(requestCtx, code.String()); err != nil {
		c.logger.Warn("clear shared history failed", zap.String("room", code.String()), zap.Error(err))
		c.reportStatus("Snapshot issue: " + err.Error())
		return err
	}
	c.mu.Lock()
	c.remoteHistory = nil
	c.mu.Unlock()
	return nil
}

func (c *Controller[S]) persistLocked() error {
	if err := c.persistence.Save(c.state); err != nil {
		c.logger.Warn("local save failed", zap.Error(err))
		return err
	}
	return nil
}

func (c *Controller[S]) notify(state S, source ChangeSource) {
	c.mu.Lock()
	listeners := make([]Listener[S], 0, len(c.listeners))
	for _, listener := range c.listeners {
		listeners = append(listeners, listener)
	}
	c.mu.Unlock()
	for _, listener := range listeners {
		listener(state, source)
	}
}

func (c *Controller[S]) reportStatus(message string) {
	c.mu.Lock()
	c.status = message
	callback := c.onStatus
	c.mu.Unlock()
	if callback != nil {
		callback(message)
	}
}

func (c *Controller[S]) cloneLocked() S {
	var clone S
	encoded, err := json.Marshal(c.state)
	if err != nil {
		return c.state
	}
	if err := json.Unmarshal(encoded, &clone); err != nil {
		return c.state
	}
	return clone
}

func (c *Controller[S]) normalizeValue(value S) S {
	encoded, err := json.Marshal(value)
	if err != nil {
		return c.normalizer.Default()
	}
	normalized, ok := c.normalizeBytes(encoded)
	if !ok {
		return c.normalizer.Default()
	}
	return normalized
}

func (c *Controller[S]) normalizeBytes(payload []byte) (S, bool) {
	var zero S
	if !hasPayload(payload) {
		return zero, false
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return zero, false
	}
	return c.normalizer.Normalize(decoded), true
}

func hasPayload(payload []byte) bool {
	trimmed := strings.TrimSpace(string(payload))
	return trimmed != "" && trimmed != "null"
}
