package chat

import (
	"testing"
	"time"

	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/assert"
)

func msg(id, body string, ms int64) types.Message {
	return types.Message{Id: id, RoomId: "r1", Body: body, Timestamp: time.UnixMilli(ms).UTC()}
}

func ids(messages []types.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Id)
	}
	return out
}

func TestMessageSetPut(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		once := NewMessageSet()
		once.Put(msg("m1", "hi", 10))

		twice := NewMessageSet()
		twice.Put(msg("m1", "hi", 10))
		twice.Put(msg("m1", "hi", 10))

		assert.Equal(t, once.Sorted(), twice.Sorted())
		assert.Equal(t, 1, twice.Len())
	})

	t.Run("replaces by id", func(t *testing.T) {
		s := NewMessageSet()
		s.Put(msg("m1", "hi", 10))
		s.Put(msg("m1", "hi (edited)", 10))

		assert.Equal(t, 1, s.Len())
		got, ok := s.Get("m1")
		assert.True(t, ok)
		assert.Equal(t, "hi (edited)", got.Body)
	})
}

func TestMessageSetSorted(t *testing.T) {
	tcases := []struct {
		name     string
		arrival  []types.Message
		expected []string
	}{
		{
			name:     "timestamp order regardless of arrival",
			arrival:  []types.Message{msg("m1", "", 10), msg("m3", "", 20), msg("m2", "", 5)},
			expected: []string{"m2", "m1", "m3"},
		},
		{
			name:     "ties broken by id",
			arrival:  []types.Message{msg("b", "", 10), msg("c", "", 10), msg("a", "", 10)},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "empty",
			expected: []string{},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMessageSet()
			for _, m := range tc.arrival {
				s.Put(m)
			}
			assert.Equal(t, tc.expected, ids(s.Sorted()))
		})
	}
}

func TestMessageSetSeed(t *testing.T) {
	s := NewMessageSet()
	s.Put(msg("m2", "live edit", 20))

	n := s.Seed([]types.Message{msg("m1", "hi", 10), msg("m2", "stale", 20)})
	assert.Equal(t, 1, n)

	got, _ := s.Get("m2")
	assert.Equal(t, "live edit", got.Body, "expected snapshot not to override a live entry")
	assert.Equal(t, []string{"m1", "m2"}, ids(s.Sorted()))

	// a later live event still replaces a seeded entry
	s.Put(msg("m1", "hi again", 10))
	got, _ = s.Get("m1")
	assert.Equal(t, "hi again", got.Body)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, s.Seed([]types.Message{msg("m2", "after clear", 20)}))
}
