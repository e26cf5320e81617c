package chat

import (
	"sort"

	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/samber/lo"
)

// MessageSet holds at most one message per id for a single room. It is not
// safe for concurrent use; the Client run loop owns it.
type MessageSet struct {
	messages map[string]types.Message
	live     map[string]struct{}
}

func NewMessageSet() *MessageSet {
	return &MessageSet{
		messages: make(map[string]types.Message),
		live:     make(map[string]struct{}),
	}
}

// Put inserts msg or replaces the entry with the same id. Entries added by
// Put are never overwritten by Seed.
func (s *MessageSet) Put(msg types.Message) {
	s.messages[msg.Id] = msg
	s.live[msg.Id] = struct{}{}
}

// Seed merges a history snapshot, skipping ids already delivered live.
// It reports how many entries were taken from the snapshot.
func (s *MessageSet) Seed(snapshot []types.Message) int {
	n := 0
	for _, msg := range snapshot {
		if _, ok := s.live[msg.Id]; ok {
			continue
		}
		s.messages[msg.Id] = msg
		n++
	}
	return n
}

func (s *MessageSet) Get(id string) (types.Message, bool) {
	msg, ok := s.messages[id]
	return msg, ok
}

func (s *MessageSet) Len() int {
	return len(s.messages)
}

func (s *MessageSet) Clear() {
	clear(s.messages)
	clear(s.live)
}

// Sorted returns the messages in display order: by timestamp, then by id
// for messages sent at the same instant.
func (s *MessageSet) Sorted() []types.Message {
	messages := lo.Values(s.messages)
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].Timestamp.Before(messages[j].Timestamp)
		}
		return messages[i].Id < messages[j].Id
	})
	return messages
}
