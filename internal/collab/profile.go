package collab

import (
	"time"

	"github.com/MarcoPoloResearchLab/roomsync/internal/localstore"
)

// Profile describes how one application stores and syncs its state.
type Profile[S any] struct {
	// Namespace separates the application's rooms on the relay.
	Namespace      string
	StorageKey     string
	LegacyKeys     []string
	HistoryKey     string
	DisplayNameKey string
	Debounce       time.Duration
	Normalizer     Normalizer[S]
}

// Open builds a Controller for profile backed by store.
func Open[S any](profile Profile[S], store localstore.Store, options Options) (*Controller[S], error) {
	if profile.Normalizer == nil {
		return nil, errMissingNormalizer
	}
	adapter, err := localstore.NewAdapter(localstore.AdapterConfig[S]{
		Store:      store,
		Key:        profile.StorageKey,
		LegacyKeys: profile.LegacyKeys,
		Normalize:  profile.Normalizer.Normalize,
		Logger:     options.Logger,
	})
	if err != nil {
		return nil, err
	}
	var history *LocalHistory
	if profile.HistoryKey != "" {
		history = NewLocalHistory(store, profile.HistoryKey, DefaultHistoryLimit)
	}
	return New(Config[S]{
		Normalizer:  profile.Normalizer,
		Persistence: adapter,
		History:     history,
		Debounce:    profile.Debounce,
		Options:     options,
	})
}
