// Package roomcode sanitizes the room identifiers shared through collaboration links.
package roomcode

import (
	"errors"
	"net/url"
	"strings"
)

const (
	// MaxLength bounds a sanitized room code.
	MaxLength = 60
	// Default is used when a link carries no room parameter.
	Default = "main"
	// QueryParameter names the link query parameter carrying the room code.
	QueryParameter = "room"
)

// ErrEmpty indicates that nothing usable remained after sanitizing.
var ErrEmpty = errors.New("roomcode: empty room code")

// Code is a sanitized room code.
type Code string

// Sanitize lowercases the input, strips everything outside [a-z0-9_-] and truncates to MaxLength.
func Sanitize(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	var builder strings.Builder
	builder.Grow(len(lowered))
	for _, r := range lowered {
		if builder.Len() >= MaxLength {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// New sanitizes raw input and rejects codes that end up empty.
func New(raw string) (Code, error) {
	sanitized := Sanitize(raw)
	if sanitized == "" {
		return "", ErrEmpty
	}
	return Code(sanitized), nil
}

// FromQuery extracts the room code from link query values, defaulting to Default.
// A parameter that sanitizes to nothing yields an empty code.
func FromQuery(values url.Values) Code {
	raw := values.Get(QueryParameter)
	if raw == "" {
		raw = Default
	}
	return Code(Sanitize(raw))
}

// FromURL parses a collaboration link and extracts its room code.
func FromURL(link string) (Code, error) {
	parsed, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	return FromQuery(parsed.Query()), nil
}

// String returns the underlying code.
func (c Code) String() string {
	return string(c)
}
