package localstore

import "strings"

// Preferences stores per-device user preferences outside the shared state.
type Preferences struct {
	store          Store
	displayNameKey string
}

// NewPreferences binds preferences to a store and display-name key.
func NewPreferences(store Store, displayNameKey string) *Preferences {
	return &Preferences{store: store, displayNameKey: displayNameKey}
}

// DisplayName returns the stored name, or "" when unset or unreadable.
func (p *Preferences) DisplayName() string {
	if p == nil || p.store == nil || p.displayNameKey == "" {
		return ""
	}
	value, ok, err := p.store.GetItem(p.displayNameKey)
	if err != nil || !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// SetDisplayName trims and stores the name.
func (p *Preferences) SetDisplayName(name string) error {
	if p == nil || p.store == nil || p.displayNameKey == "" {
		return ErrEmptyKey
	}
	return p.store.SetItem(p.displayNameKey, strings.TrimSpace(name))
}
