package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEvent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	v := NewValidator()

	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{
			name: "valid event with Z timestamp",
			event: Event{
				Topic:     "user.login",
				EventID:   "e1",
				Timestamp: "2025-10-23T10:00:00Z",
				Source:    "auth",
			},
		},
		{
			name: "valid event with fractional seconds",
			event: Event{
				Topic:     "user.login",
				EventID:   "e1",
				Timestamp: "2025-10-23T10:00:00.123456Z",
				Source:    "auth",
			},
		},
		{
			name: "valid event with numeric offset",
			event: Event{
				Topic:     "user.login",
				EventID:   "e1",
				Timestamp: "2025-10-23T10:00:00+02:00",
				Source:    "auth",
			},
		},
		{
			name: "empty topic",
			event: Event{
				EventID:   "e1",
				Timestamp: "2025-10-23T10:00:00Z",
				Source:    "auth",
			},
			wantErr: ErrEmptyTopic,
		},
		{
			name: "empty event id",
			event: Event{
				Topic:     "user.login",
				Timestamp: "2025-10-23T10:00:00Z",
				Source:    "auth",
			},
			wantErr: ErrEmptyEventID,
		},
		{
			name: "empty source",
			event: Event{
				Topic:     "user.login",
				EventID:   "e1",
				Timestamp: "2025-10-23T10:00:00Z",
			},
			wantErr: ErrEmptySource,
		},
		{
			name: "invalid timestamp",
			event: Event{
				Topic:     "user.login",
				EventID:   "e1",
				Timestamp: "not-a-timestamp",
				Source:    "auth",
			},
			wantErr: ErrInvalidTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateEvent(tt.event)
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateEventBatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	v := NewValidator()

	t.Run("empty batch rejected", func(t *testing.T) {
		err := v.ValidateEventBatch(nil)
		assert.ErrorIs(t, err, ErrEmptyBatch)
	})

	t.Run("reports index of first invalid event", func(t *testing.T) {
		events := []Event{
			{Topic: "t", EventID: "e1", Timestamp: "2025-10-23T10:00:00Z", Source: "s"},
			{Topic: "t", EventID: "", Timestamp: "2025-10-23T10:00:00Z", Source: "s"},
		}

		err := v.ValidateEventBatch(events)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyEventID)
		assert.Contains(t, err.Error(), "event 1")
	})

	t.Run("all valid", func(t *testing.T) {
		events := []Event{
			{Topic: "t", EventID: "e1", Timestamp: "2025-10-23T10:00:00Z", Source: "s"},
			{Topic: "t", EventID: "e2", Timestamp: "2025-10-23T10:00:01Z", Source: "s"},
		}

		assert.NoError(t, v.ValidateEventBatch(events))
	})
}
