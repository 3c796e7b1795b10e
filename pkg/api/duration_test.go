package api_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func TestDurationJSON(t *testing.T) {
	var d api.Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`250`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Std())

	out, err := json.Marshal(api.Duration(5 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"5s"`, string(out))

	err = json.Unmarshal([]byte(`"soon"`), &d)
	assert.ErrorIs(t, err, api.ErrInvalidDuration)
}

func TestDurationYAML(t *testing.T) {
	var doc struct {
		Timeout api.Duration `yaml:"timeout"`
		Backoff api.Duration `yaml:"backoff"`
	}
	err := yaml.Unmarshal([]byte("timeout: 5m\nbackoff: 100\n"), &doc)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, doc.Timeout.Std())
	assert.Equal(t, 100*time.Millisecond, doc.Backoff.Std())

	err = yaml.Unmarshal([]byte("timeout: later\n"), &doc)
	assert.ErrorIs(t, err, api.ErrInvalidDuration)
}
