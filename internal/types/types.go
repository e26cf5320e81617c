package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type User struct {
	Id       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// DisplayName returns the user's full name, or the username when the
// server did not send one.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

type Room struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Subscription is a room membership as returned by subscriptions.get.
type Subscription struct {
	Id       string `json:"_id"`
	RoomId   string `json:"rid"`
	Name     string `json:"name"`
	FullName string `json:"fname,omitempty"`
	Type     string `json:"t"`
}

func (s Subscription) Room() Room {
	name := s.FullName
	if name == "" {
		name = s.Name
	}
	return Room{
		Id:   s.RoomId,
		Name: name,
		Type: s.Type,
	}
}

type Message struct {
	Id        string    `json:"_id" validate:"required"`
	RoomId    string    `json:"rid"`
	Author    User      `json:"u"`
	Body      string    `json:"msg"`
	Timestamp time.Time `json:"ts" validate:"required"`
}

// Clock formats the message time the way the feed displays it.
func (m Message) Clock() string {
	return m.Timestamp.Local().Format("3:04 PM")
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		Timestamp json.RawMessage `json:"ts"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts, err := ParseTimestamp(aux.Timestamp)
	if err != nil {
		return fmt.Errorf("message %q: %w", m.Id, err)
	}
	m.Timestamp = ts

	return nil
}

// ParseTimestamp decodes a timestamp sent either as an RFC 3339 string
// (REST responses), as EJSON {"$date": millis} (DDP frames) or as a bare
// number of milliseconds. An absent or null value yields the zero time.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
		}
		return t.UTC(), nil
	case '{':
		var d struct {
			Date *int64 `json:"$date"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return time.Time{}, err
		}
		if d.Date == nil {
			return time.Time{}, fmt.Errorf("timestamp object without $date")
		}
		return time.UnixMilli(*d.Date).UTC(), nil
	default:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return time.Time{}, fmt.Errorf("unsupported timestamp %s", raw)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
}
