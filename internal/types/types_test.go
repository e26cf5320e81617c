package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	tcases := []struct {
		name     string
		raw      string
		expected time.Time
		err      bool
	}{
		{
			name:     "rfc3339 string",
			raw:      `"2024-05-01T12:30:00.000Z"`,
			expected: want,
		},
		{
			name:     "ejson date",
			raw:      `{"$date": 1714566600000}`,
			expected: want,
		},
		{
			name:     "bare millis",
			raw:      `1714566600000`,
			expected: want,
		},
		{
			name:     "null",
			raw:      `null`,
			expected: time.Time{},
		},
		{
			name:     "empty",
			raw:      ``,
			expected: time.Time{},
		},
		{
			name: "object without date",
			raw:  `{"foo": 1}`,
			err:  true,
		},
		{
			name: "garbage string",
			raw:  `"yesterday"`,
			err:  true,
		},
		{
			name: "boolean",
			raw:  `true`,
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ts, err := ParseTimestamp(json.RawMessage(tc.raw))
			if tc.err {
				assert.Error(t, err, "expected error for %s", tc.raw)
				return
			}
			assert.NoError(t, err)
			assert.True(t, tc.expected.Equal(ts), "expected %v, got %v", tc.expected, ts)
		})
	}
}

func TestMessageUnmarshalJSON(t *testing.T) {
	t.Run("stream event", func(t *testing.T) {
		raw := `{"_id":"m2","rid":"r1","msg":"yo","ts":{"$date":200},"u":{"_id":"u1","username":"alice","name":"Alice"}}`

		var m Message
		require.NoError(t, json.Unmarshal([]byte(raw), &m))
		assert.Equal(t, "m2", m.Id)
		assert.Equal(t, "r1", m.RoomId)
		assert.Equal(t, "yo", m.Body)
		assert.Equal(t, "Alice", m.Author.DisplayName())
		assert.Equal(t, int64(200), m.Timestamp.UnixMilli())
	})

	t.Run("history entry", func(t *testing.T) {
		raw := `{"_id":"m1","rid":"r1","msg":"hi","ts":"2024-05-01T12:30:00.000Z","u":{"_id":"u1","username":"alice"}}`

		var m Message
		require.NoError(t, json.Unmarshal([]byte(raw), &m))
		assert.Equal(t, "alice", m.Author.DisplayName())
		assert.Equal(t, 2024, m.Timestamp.Year())
	})

	t.Run("missing timestamp decodes to zero", func(t *testing.T) {
		var m Message
		require.NoError(t, json.Unmarshal([]byte(`{"_id":"m3","msg":"no time"}`), &m))
		assert.True(t, m.Timestamp.IsZero())
	})

	t.Run("bad timestamp", func(t *testing.T) {
		var m Message
		err := json.Unmarshal([]byte(`{"_id":"m4","ts":"soon"}`), &m)
		assert.Error(t, err)
	})

	t.Run("marshal output is readable back", func(t *testing.T) {
		in := Message{Id: "m5", RoomId: "r1", Body: "hello", Timestamp: time.UnixMilli(5000).UTC()}
		b, err := json.Marshal(in)
		require.NoError(t, err)

		var out Message
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, in, out)
	})
}

func TestSubscriptionRoom(t *testing.T) {
	tcases := []struct {
		name     string
		sub      Subscription
		expected Room
	}{
		{
			name:     "prefers friendly name",
			sub:      Subscription{Id: "s1", RoomId: "r1", Name: "general", FullName: "General", Type: "c"},
			expected: Room{Id: "r1", Name: "General", Type: "c"},
		},
		{
			name:     "falls back to name",
			sub:      Subscription{Id: "s2", RoomId: "r2", Name: "random", Type: "p"},
			expected: Room{Id: "r2", Name: "random", Type: "p"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.sub.Room())
		})
	}
}
