package chat

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/rs/zerolog"
)

const historyPath = "/v1/channels.history"

type HistoryLoader struct {
	log       zerolog.Logger
	transport transport.Transport
	session   *Session
	validate  *validator.Validate
	count     int
}

// NewHistoryLoader returns a loader asking for count messages per snapshot;
// zero leaves the page size to the server.
func NewHistoryLoader(t transport.Transport, session *Session, count int, logger zerolog.Logger) *HistoryLoader {
	return &HistoryLoader{
		log:       logger.With().Str("component", "history").Logger(),
		transport: t,
		session:   session,
		validate:  newValidator(),
		count:     count,
	}
}

// FetchHistory returns a one-shot snapshot of roomId. Malformed entries are
// skipped.
func (h *HistoryLoader) FetchHistory(ctx context.Context, roomId string) ([]types.Message, error) {
	if err := h.session.require("fetch history"); err != nil {
		return nil, err
	}

	query := url.Values{"roomId": {roomId}}
	if h.count > 0 {
		query.Set("count", strconv.Itoa(h.count))
	}

	var resp struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := h.transport.Get(ctx, historyPath, query, &resp); err != nil {
		return nil, restError(KindFetch, "fetch history", err)
	}

	messages := make([]types.Message, 0, len(resp.Messages))
	for _, raw := range resp.Messages {
		msg, err := decodeMessage(h.validate, raw)
		if err != nil {
			h.log.Warn().Err(err).Str("room", roomId).Msg("skipping invalid history entry")
			continue
		}
		messages = append(messages, msg)
	}

	h.log.Debug().Str("room", roomId).Int("messages", len(messages)).Msg("fetched history")
	return messages, nil
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func decodeMessage(v *validator.Validate, raw json.RawMessage) (types.Message, error) {
	var msg types.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return types.Message{}, err
	}
	if err := v.Struct(msg); err != nil {
		return types.Message{}, err
	}
	return msg, nil
}
