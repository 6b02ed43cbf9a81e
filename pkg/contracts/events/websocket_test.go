package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageEnvelope(t *testing.T) {
	msg := NewMessage(MessageTypeWizardSnapshot, "sess-1", ActionUpdated, map[string]int{"progress": 50})

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "wizard:snapshot", decoded["type"])
	assert.Equal(t, "sess-1", decoded["subject"])
	assert.Equal(t, "updated", decoded["action"])
	assert.Equal(t, map[string]any{"progress": 50.0}, decoded["data"])
	assert.NotContains(t, decoded, "trace_id")
}
