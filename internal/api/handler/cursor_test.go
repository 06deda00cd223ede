package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routedly/marketplace-be/internal/sla"
)

func TestEventCursorRoundTrip(t *testing.T) {
	original := &sla.EventCursor{
		CreatedAt: time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC),
		EventID:   "6b3f0a1e-8c9d-4e2f-9a1b-0c3d5e7f9a1b",
	}

	encoded := EncodeEventCursor(original)
	decoded, err := DecodeEventCursor(encoded)
	require.NoError(t, err)

	assert.True(t, original.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, original.EventID, decoded.EventID)
}

func TestDecodeEventCursorEmpty(t *testing.T) {
	cursor, err := DecodeEventCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeEventCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!not-base64!!"},
		{"missing separator", "bm9zZXBhcmF0b3I="},     // "noseparator"
		{"non-numeric timestamp", "YWJjfGV2ZW50LWlk"}, // "abc|event-id"
		{"too many fields", "MTIzfGV2ZW50fGV4dHJh"},   // "123|event|extra"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEventCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
