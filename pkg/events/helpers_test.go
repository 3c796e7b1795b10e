package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func makeEvent(
	t *testing.T, id timebox.AggregateID, et api.EventType, at time.Time,
	data any,
) *timebox.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &timebox.Event{
		Timestamp:   at,
		AggregateID: id,
		Type:        timebox.EventType(et),
		Data:        raw,
	}
}
