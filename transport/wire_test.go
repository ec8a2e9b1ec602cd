package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal_RoundTripPreservesDates(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := Message{
		T: TypeResponse,
		C: 7,
		S: "agent-b",
		P: map[string]any{"date": ts, "dateStr": "2024-01-02T03:04:05.000Z"},
	}

	data, err := Marshal(msg)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, msg.T, got.T)
	assert.Equal(t, msg.C, got.C)
	assert.Equal(t, msg.S, got.S)

	p := got.P.(map[string]any)
	assert.True(t, p["date"].(time.Time).Equal(ts))
	assert.Equal(t, "2024-01-02T03:04:05.000Z", p["dateStr"])
}
