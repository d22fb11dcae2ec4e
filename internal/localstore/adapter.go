package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var errMissingNormalize = errors.New("localstore: normalize function is required")

// AdapterConfig describes where one application's state document lives.
type AdapterConfig[S any] struct {
	Store      Store
	Key        string
	LegacyKeys []string
	Normalize  func(raw any) S
	Logger     *zap.Logger
}

// Adapter saves and loads a single state document. Loaded documents are
// always normalized, so older or hand-edited documents come back valid.
type Adapter[S any] struct {
	store      Store
	key        string
	legacyKeys []string
	normalize  func(raw any) S
	logger     *zap.Logger
}

// NewAdapter validates configuration and returns an Adapter.
func NewAdapter[S any](cfg AdapterConfig[S]) (*Adapter[S], error) {
	if cfg.Store == nil {
		return nil, errors.New("localstore: store is required")
	}
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, ErrEmptyKey
	}
	if cfg.Normalize == nil {
		return nil, errMissingNormalize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter[S]{
		store:      cfg.Store,
		key:        cfg.Key,
		legacyKeys: append([]string(nil), cfg.LegacyKeys...),
		normalize:  cfg.Normalize,
		logger:     logger,
	}, nil
}

// Key returns the primary storage key.
func (a *Adapter[S]) Key() string {
	return a.key
}

// Save overwrites the stored document with state.
func (a *Adapter[S]) Save(state S) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("localstore: encode %s: %w", a.key, err)
	}
	if err := a.store.SetItem(a.key, string(encoded)); err != nil {
		return fmt.Errorf("localstore: save %s: %w", a.key, err)
	}
	return nil
}

// Load returns the normalized stored document. The primary key is tried first,
// then each legacy key. Missing or unreadable documents report false.
func (a *Adapter[S]) Load() (S, bool) {
	var zero S
	for _, key := range a.candidateKeys() {
		raw, ok, err := a.store.GetItem(key)
		if err != nil {
			a.logger.Warn("local state read failed", zap.String("key", key), zap.Error(err))
			return zero, false
		}
		if !ok || raw == "" {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			a.logger.Warn("local state is not valid json", zap.String("key", key), zap.Error(err))
			return zero, false
		}
		if decoded == nil {
			return zero, false
		}
		return a.normalize(decoded), true
	}
	return zero, false
}

// Clear removes the primary document.
func (a *Adapter[S]) Clear() error {
	return a.store.RemoveItem(a.key)
}

func (a *Adapter[S]) candidateKeys() []string {
	keys := make([]string, 0, 1+len(a.legacyKeys))
	keys = append(keys, a.key)
	return append(keys, a.legacyKeys...)
}
