// Package payload defines the flat key/value record passed between pipeline
// stages.
package payload

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// KeyImageURI holds the locator of the image a stage should read or has written.
const KeyImageURI = "KEY_IMAGE_URI"

// Payload is an immutable string-keyed map. The zero value is an empty payload.
type Payload struct {
	values map[string]string
}

// Empty returns a payload with no entries.
func Empty() Payload { return Payload{} }

// Of builds a payload holding a single entry. Empty values are dropped.
func Of(key, value string) Payload {
	return NewBuilder().Set(key, value).Build()
}

// Get returns the value for key. An empty value is reported as absent.
func (p Payload) Get(key string) (string, bool) {
	v, ok := p.values[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ImageURI is shorthand for Get(KeyImageURI).
func (p Payload) ImageURI() (string, bool) {
	return p.Get(KeyImageURI)
}

// Len reports the number of entries.
func (p Payload) Len() int { return len(p.values) }

// IsEmpty reports whether the payload carries no entries.
func (p Payload) IsEmpty() bool { return len(p.values) == 0 }

// Keys returns the keys in sorted order.
func (p Payload) Keys() []string {
	return slices.Sorted(maps.Keys(p.values))
}

// Map returns a copy of the underlying entries.
func (p Payload) Map() map[string]string {
	if len(p.values) == 0 {
		return map[string]string{}
	}
	return maps.Clone(p.values)
}

// Equal reports whether both payloads hold the same entries.
func (p Payload) Equal(other Payload) bool {
	return maps.Equal(p.values, other.values)
}

func (p Payload) String() string {
	if len(p.values) == 0 {
		return "{}"
	}
	data, err := json.Marshal(p.values)
	if err != nil {
		return fmt.Sprintf("%v", p.values)
	}
	return string(data)
}

// MarshalJSON encodes the payload as a JSON object of strings.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.values)
}

// UnmarshalJSON decodes a JSON object of strings. Empty values are dropped.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	b := NewBuilder()
	for k, v := range raw {
		b.Set(k, v)
	}
	*p = b.Build()
	return nil
}

// Marshal returns the JSON form used when persisting payloads.
func Marshal(p Payload) (string, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Unmarshal parses a persisted payload. Blank input yields an empty payload.
func Unmarshal(raw string) (Payload, error) {
	if raw == "" {
		return Payload{}, nil
	}
	var p Payload
	if err := p.UnmarshalJSON([]byte(raw)); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Builder accumulates entries for a Payload.
type Builder struct {
	values map[string]string
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{values: map[string]string{}}
}

// Set records key=value. Empty values remove the key.
func (b *Builder) Set(key, value string) *Builder {
	if value == "" {
		delete(b.values, key)
		return b
	}
	b.values[key] = value
	return b
}

// Merge copies every entry of p into the builder.
func (b *Builder) Merge(p Payload) *Builder {
	for k, v := range p.values {
		b.Set(k, v)
	}
	return b
}

// Build returns the payload. The builder may be reused afterwards.
func (b *Builder) Build() Payload {
	if len(b.values) == 0 {
		return Payload{}
	}
	return Payload{values: maps.Clone(b.values)}
}
