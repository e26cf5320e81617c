package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/rs/zerolog"
)

const sendMessagePath = "/v1/chat.sendMessage"

var (
	errEmptyMessage = errors.New("message is empty")
	errNoRoom       = errors.New("no room selected")
)

type Composer struct {
	log       zerolog.Logger
	transport transport.Transport
	session   *Session
	stats     stats.StatsProvider
}

func NewComposer(t transport.Transport, session *Session, su stats.StatsProvider, logger zerolog.Logger) *Composer {
	su.RegisterMetric(stats.MessagesSent)
	return &Composer{
		log:       logger.With().Str("component", "composer").Logger(),
		transport: t,
		session:   session,
		stats:     su,
	}
}

type outgoingMessage struct {
	RoomId string `json:"rid"`
	Text   string `json:"msg"`
}

// SendMessage posts text to roomId. Nothing is added to the feed locally;
// the message shows up when the server echoes it on the live stream.
func (c *Composer) SendMessage(ctx context.Context, roomId, text string) error {
	if err := c.session.require("send message"); err != nil {
		return err
	}
	if roomId == "" {
		return newError(KindSend, "send message", errNoRoom)
	}
	if strings.TrimSpace(text) == "" {
		return newError(KindSend, "send message", errEmptyMessage)
	}

	body := map[string]outgoingMessage{"message": {RoomId: roomId, Text: text}}
	if err := c.transport.Post(ctx, sendMessagePath, body, nil); err != nil {
		return restError(KindSend, "send message", err)
	}

	c.stats.Incr(stats.MessagesSent)
	c.log.Debug().Str("room", roomId).Msg("message sent")
	return nil
}
