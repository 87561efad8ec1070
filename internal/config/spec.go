package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownType is returned when a spec names a type with no registered implementation.
	ErrUnknownType = errors.New("unknown type")

	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing required field")
)

// Spec is a tagged union read from a job definition: a "type" field plus
// type-specific fields. It is decoded into a concrete config struct by the
// implementation the tag resolves to.
type Spec map[string]any

// Type returns the normalized type tag.
func (s Spec) Type() (string, error) {
	raw, ok := s["type"]
	if !ok {
		return "", fmt.Errorf("%w: type", ErrMissingField)
	}
	tag, ok := raw.(string)
	if !ok || strings.TrimSpace(tag) == "" {
		return "", fmt.Errorf("%w: type must be a non-empty string", ErrMissingField)
	}
	return strings.ToLower(strings.TrimSpace(tag)), nil
}

// Decode fills v from the spec's fields using their JSON names.
func (s Spec) Decode(v any) error {
	data, err := json.Marshal(normalize(map[string]any(s)))
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode spec: %w", err)
	}
	return nil
}

// Specs returns the nested specs stored under key, for composite types.
func (s Spec) Specs(key string) ([]Spec, error) {
	raw, ok := s[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	items, ok := normalize(raw).([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list", key)
	}

	specs := make([]Spec, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a table", key, i)
		}
		specs = append(specs, Spec(m))
	}
	return specs, nil
}

// normalize rewrites the map shapes produced by the YAML and TOML decoders
// into plain map[string]any so they survive a JSON round trip.
func normalize(v any) any {
	switch t := v.(type) {
	case Spec:
		return normalize(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
