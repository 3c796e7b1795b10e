package api

import (
	"encoding/json"
	"maps"
)

type (
	// Args represents named values passed to or returned from activities
	Args map[string]any

	// Config is the opaque, kind-specific configuration of a task
	Config map[string]any
)

// Set creates a new Args with the specified name-value pair added
func (a Args) Set(name string, value any) Args {
	if a == nil {
		return Args{name: value}
	}
	res := maps.Clone(a)
	res[name] = value
	return res
}

// Apply returns a new Args with other's values layered over these
func (a Args) Apply(other Args) Args {
	res := make(Args, len(a)+len(other))
	maps.Copy(res, a)
	maps.Copy(res, other)
	return res
}

// Normalize returns a copy of the Args holding the values a JSON round trip
// yields, which is the shape they take when replayed from the event log
func (a Args) Normalize() (Args, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var res Args
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetString retrieves a string value from args, returning defaultValue if not
// found or wrong type
func (a Args) GetString(name string, defaultValue string) string {
	if s, ok := a[name].(string); ok {
		return s
	}
	return defaultValue
}

// GetString retrieves a string config value, returning defaultValue if not
// found or wrong type
func (c Config) GetString(name string, defaultValue string) string {
	return Args(c).GetString(name, defaultValue)
}

// GetMap retrieves a nested object from the config. A missing or mistyped
// value yields nil. yaml.v3 decodes nested mappings into the enclosing map
// type, so Config and Args values are accepted alongside plain maps
func (c Config) GetMap(name string) map[string]any {
	switch m := c[name].(type) {
	case map[string]any:
		return m
	case Config:
		return map[string]any(m)
	case Args:
		return map[string]any(m)
	default:
		return nil
	}
}
