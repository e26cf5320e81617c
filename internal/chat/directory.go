package chat

import (
	"context"
	"sort"
	"strings"

	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const subscriptionsPath = "/v1/subscriptions.get"

type RoomDirectory struct {
	log       zerolog.Logger
	transport transport.Transport
	session   *Session
}

func NewRoomDirectory(t transport.Transport, session *Session, logger zerolog.Logger) *RoomDirectory {
	return &RoomDirectory{
		log:       logger.With().Str("component", "directory").Logger(),
		transport: t,
		session:   session,
	}
}

// ListRooms returns the rooms the user belongs to, sorted by name.
func (d *RoomDirectory) ListRooms(ctx context.Context) ([]types.Room, error) {
	if err := d.session.require("list rooms"); err != nil {
		return nil, err
	}

	var resp struct {
		Update []types.Subscription `json:"update"`
	}
	if err := d.transport.Get(ctx, subscriptionsPath, nil, &resp); err != nil {
		return nil, restError(KindFetch, "list rooms", err)
	}

	rooms := lo.FilterMap(resp.Update, func(s types.Subscription, _ int) (types.Room, bool) {
		return s.Room(), s.RoomId != ""
	})
	sort.SliceStable(rooms, func(i, j int) bool {
		return strings.ToLower(rooms[i].Name) < strings.ToLower(rooms[j].Name)
	})

	d.log.Debug().Int("rooms", len(rooms)).Msg("listed rooms")
	return rooms, nil
}

// Find resolves key against a room id first, then a case-insensitive name.
func Find(rooms []types.Room, key string) (types.Room, bool) {
	if room, ok := lo.Find(rooms, func(r types.Room) bool { return r.Id == key }); ok {
		return room, true
	}
	key = strings.TrimPrefix(key, "#")
	return lo.Find(rooms, func(r types.Room) bool { return strings.EqualFold(r.Name, key) })
}
