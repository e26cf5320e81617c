package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/rs/zerolog"
)

const roomMessagesStream = "room-messages"

// EventFunc receives each valid message delivered on a subscription, in
// arrival order.
type EventFunc func(sub *Subscription, msg types.Message)

// Synchronizer opens live message streams for rooms.
type Synchronizer struct {
	log       zerolog.Logger
	transport transport.Transport
	validate  *validator.Validate
	stats     stats.StatsProvider
}

func NewSynchronizer(t transport.Transport, su stats.StatsProvider, logger zerolog.Logger) *Synchronizer {
	su.RegisterMetric(stats.ActiveSubscriptions)
	su.RegisterMetric(stats.EventsInvalid)
	return &Synchronizer{
		log:       logger.With().Str("component", "feed").Logger(),
		transport: t,
		validate:  newValidator(),
		stats:     su,
	}
}

// Subscription is the handle of one live stream, bound to a single room.
type Subscription struct {
	roomId  string
	log     zerolog.Logger
	sync    *Synchronizer
	onEvent EventFunc

	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	released bool

	// guarded separately from mu: deliver may hold mu while Subscribe is
	// still attaching the stopper
	stopMu  sync.Mutex
	stopper transport.Stopper
	ended   <-chan struct{}
}

func (sub *Subscription) RoomId() string {
	return sub.roomId
}

// Done is closed when the subscription is released.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Ended is closed when the stream stops without being released: the server
// ended the subscription or the connection dropped.
func (sub *Subscription) Ended() <-chan struct{} {
	sub.stopMu.Lock()
	defer sub.stopMu.Unlock()
	return sub.ended
}

// Live reports whether the stream is still attached.
func (sub *Subscription) Live() bool {
	select {
	case <-sub.done:
		return false
	case <-sub.Ended():
		return false
	default:
		return true
	}
}

// Subscribe starts delivering roomId's new messages to onEvent. An empty
// room is a successful subscription that simply delivers nothing yet.
func (s *Synchronizer) Subscribe(ctx context.Context, roomId string, onEvent EventFunc) (*Subscription, error) {
	sub := &Subscription{
		roomId:  roomId,
		log:     s.log.With().Str("room", roomId).Logger(),
		sync:    s,
		onEvent: onEvent,
		done:    make(chan struct{}),
	}

	stopper, err := s.transport.Stream(ctx, roomMessagesStream, roomId, sub.deliver)
	if err != nil {
		return nil, newError(KindConnectivity, "subscribe", err)
	}

	sub.stopMu.Lock()
	sub.stopper = stopper
	sub.ended = stopper.Done()
	sub.stopMu.Unlock()

	s.stats.Incr(stats.ActiveSubscriptions)
	sub.log.Debug().Msg("subscribed")
	return sub, nil
}

// Release is the same as sub.Release.
func (s *Synchronizer) Release(sub *Subscription) {
	if sub != nil {
		sub.Release()
	}
}

// Release stops the stream. It is idempotent, and once it returns the
// event callback is never invoked again for this handle.
func (sub *Subscription) Release() {
	sub.once.Do(func() {
		// unblocks a deliver waiting on the consumer before taking mu
		close(sub.done)

		sub.mu.Lock()
		sub.released = true
		sub.mu.Unlock()

		sub.stopMu.Lock()
		stopper := sub.stopper
		sub.stopMu.Unlock()

		if stopper != nil {
			stopper.Stop()
		}
		sub.sync.stats.Decr(stats.ActiveSubscriptions)
		sub.log.Debug().Msg("released")
	})
}

func (sub *Subscription) deliver(raw json.RawMessage) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.released {
		return
	}

	msg, err := decodeMessage(sub.sync.validate, raw)
	if err != nil {
		sub.sync.stats.Incr(stats.EventsInvalid)
		sub.log.Warn().Err(err).Msg("dropping invalid event")
		return
	}
	if msg.RoomId != "" && msg.RoomId != sub.roomId {
		sub.sync.stats.Incr(stats.EventsInvalid)
		sub.log.Warn().Str("event_room", msg.RoomId).Msg("dropping event for another room")
		return
	}
	if msg.RoomId == "" {
		msg.RoomId = sub.roomId
	}

	sub.onEvent(sub, msg)
}
