package ids

import "github.com/google/uuid"

// Provider issues unique string identifiers.
type Provider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs a Provider that issues UUIDv7 identifiers.
func NewUUIDProvider() Provider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// MustNewID returns a fresh identifier from provider, falling back to a random
// UUIDv4 when the provider fails. Normalizers use it where failing is not an option.
func MustNewID(provider Provider) string {
	if provider != nil {
		if id, err := provider.NewID(); err == nil && id != "" {
			return id
		}
	}
	return uuid.NewString()
}
