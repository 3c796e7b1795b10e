package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that serializes as a Go duration string
// ("1s", "5m") in both JSON and YAML
type Duration time.Duration

var ErrInvalidDuration = errors.New("invalid duration")

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either a duration string or a number of milliseconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	res, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*d = res
	return nil
}

// MarshalYAML encodes the duration as a string
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts either a duration string or a number of milliseconds
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	res, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*d = res
	return nil
}

func parseDuration(raw any) (Duration, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case string:
		if v == "" {
			return 0, nil
		}
		res, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, v)
		}
		return Duration(res), nil
	case int:
		return Duration(time.Duration(v) * time.Millisecond), nil
	case float64:
		return Duration(time.Duration(v * float64(time.Millisecond))), nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidDuration, raw)
	}
}
