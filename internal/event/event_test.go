package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ValidEvent(t *testing.T) {
	ev, err := Decode([]byte(`{"id":"evt-1","ts":"2025-01-15T10:30:00Z","type":"UPDATE","payload":{"k":"v"}}`))
	require.NoError(t, err)

	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, TypeUpdate, ev.Type)
	assert.Equal(t, time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC), ev.TS)
	assert.JSONEq(t, `{"k":"v"}`, string(ev.Payload))
}

func TestDecode_Failures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `nope`},
		{"missing id", `{"ts":"2025-01-15T10:30:00Z","type":"CREATE"}`},
		{"unknown type", `{"id":"evt-1","ts":"2025-01-15T10:30:00Z","type":"PATCH"}`},
		{"unparseable timestamp", `{"id":"evt-1","ts":"yesterday","type":"CREATE"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			require.Error(t, err)

			var de *DeserializationError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "DeserializationError", de.Class())
		})
	}
}

func TestType_Valid(t *testing.T) {
	assert.True(t, TypeCreate.Valid())
	assert.True(t, TypeUpdate.Valid())
	assert.True(t, TypeDelete.Valid())
	assert.False(t, Type("").Valid())
	assert.False(t, Type("create").Valid())
}
