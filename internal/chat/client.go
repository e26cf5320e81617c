package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/rs/zerolog"
)

var errStopped = errors.New("client is shut down")

// View is what the feed shows: the active room and its messages in display
// order. RoomId is empty while no room is selected.
type View struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type Options struct {
	// HistoryCount is the snapshot size requested per room; zero lets the
	// server decide.
	HistoryCount int
}

// Client ties the chat components together. Room selection, the live
// subscription and the message set are owned by the Run goroutine; every
// mutation goes through one of its channels.
type Client struct {
	log       zerolog.Logger
	stats     stats.StatsProvider
	transport transport.Transport
	session   *Session
	directory *RoomDirectory
	history   *HistoryLoader
	composer  *Composer
	feed      *Synchronizer

	switchChan chan *switchReq
	seedChan   chan *seedReq
	eventChan  chan feedEvent
	endedChan  chan *Subscription
	resetChan  chan chan struct{}
	stateChan  chan chan state
	updates    chan View
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}

	// owned by Run
	roomId   string
	gen      uint64
	active   *Subscription
	messages *MessageSet
}

type switchReq struct {
	ctx    context.Context
	roomId string
	result chan switchResult
}

type switchResult struct {
	gen  uint64
	noop bool
	err  error
}

type seedReq struct {
	gen      uint64
	roomId   string
	messages []types.Message
}

type feedEvent struct {
	sub *Subscription
	msg types.Message
}

type state struct {
	view View
	gen  uint64
}

func NewClient(t transport.Transport, su stats.StatsProvider, opts Options, logger zerolog.Logger) *Client {
	session := NewSession(t, logger)
	su.RegisterMetric(stats.RoomSwitches)
	su.RegisterMetric(stats.EventsMerged)
	su.RegisterMetric(stats.EventsDropped)
	su.RegisterMetric(stats.SubscriptionsLost)

	return &Client{
		log:        logger.With().Str("component", "client").Logger(),
		stats:      su,
		transport:  t,
		session:    session,
		directory:  NewRoomDirectory(t, session, logger),
		history:    NewHistoryLoader(t, session, opts.HistoryCount, logger),
		composer:   NewComposer(t, session, su, logger),
		feed:       NewSynchronizer(t, su, logger),
		switchChan: make(chan *switchReq),
		seedChan:   make(chan *seedReq),
		eventChan:  make(chan feedEvent),
		endedChan:  make(chan *Subscription),
		resetChan:  make(chan chan struct{}),
		stateChan:  make(chan chan state),
		updates:    make(chan View, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		messages:   NewMessageSet(),
	}
}

func (c *Client) Run() {
	c.log.Debug().Msg("client loop started")
	defer func() {
		c.release()
		close(c.done)
		c.log.Debug().Msg("client loop exited")
	}()

	for {
		select {
		case req := <-c.switchChan:
			req.result <- c.switchRoom(req)
		case req := <-c.seedChan:
			c.seed(req)
		case ev := <-c.eventChan:
			c.merge(ev)
		case sub := <-c.endedChan:
			c.lost(sub)
		case ack := <-c.resetChan:
			c.release()
			c.messages.Clear()
			c.roomId = ""
			c.gen++
			c.publish()
			close(ack)
		case reply := <-c.stateChan:
			reply <- state{view: c.view(), gen: c.gen}
		case <-c.stop:
			return
		}
	}
}

func (c *Client) switchRoom(req *switchReq) switchResult {
	if req.roomId == c.roomId && c.active != nil && c.active.Live() {
		return switchResult{gen: c.gen, noop: true}
	}

	c.release()
	c.messages.Clear()
	c.roomId = ""
	c.gen++

	// the loop is blocked until Subscribe returns, so Shutdown must be able
	// to cut it short
	ctx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	sub, err := c.feed.Subscribe(ctx, req.roomId, c.onEvent)
	if err != nil {
		c.log.Warn().Err(err).Str("room", req.roomId).Msg("subscribe failed")
		c.publish()
		return switchResult{err: err}
	}

	c.active = sub
	c.roomId = req.roomId
	go c.watch(sub)
	c.stats.Incr(stats.RoomSwitches)
	c.log.Info().Str("room", req.roomId).Msg("switched room")
	c.publish()

	return switchResult{gen: c.gen}
}

// watch reports sub to the loop if its stream ends before it is released.
func (c *Client) watch(sub *Subscription) {
	select {
	case <-sub.Ended():
	case <-sub.Done():
		return
	}

	select {
	case c.endedChan <- sub:
	case <-sub.Done():
	case <-c.stop:
	}
}

// lost drops a subscription whose stream ended underneath it. The view
// goes back to no room so a later SelectRoom subscribes again.
func (c *Client) lost(sub *Subscription) {
	if sub != c.active {
		return
	}

	c.log.Warn().Str("room", c.roomId).Msg("live feed ended")
	c.stats.Incr(stats.SubscriptionsLost)
	c.release()
	c.messages.Clear()
	c.roomId = ""
	c.gen++
	c.publish()
}

func (c *Client) seed(req *seedReq) {
	if req.gen != c.gen || c.active == nil {
		c.log.Debug().Str("room", req.roomId).Msg("discarding stale history")
		return
	}

	n := c.messages.Seed(req.messages)
	c.log.Debug().Str("room", req.roomId).Int("merged", n).Msg("seeded history")
	c.publish()
}

func (c *Client) merge(ev feedEvent) {
	if ev.sub != c.active {
		c.stats.Incr(stats.EventsDropped)
		return
	}

	c.messages.Put(ev.msg)
	c.stats.Incr(stats.EventsMerged)
	c.publish()
}

func (c *Client) release() {
	if c.active != nil {
		c.active.Release()
		c.active = nil
	}
}

func (c *Client) view() View {
	return View{RoomId: c.roomId, Messages: c.messages.Sorted()}
}

// publish offers the current view to Updates, replacing one the consumer
// has not read yet.
func (c *Client) publish() {
	v := c.view()
	select {
	case c.updates <- v:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- v:
	default:
	}
}

// onEvent runs on the stream's goroutine. It never blocks past the
// handle's release or the loop's exit.
func (c *Client) onEvent(sub *Subscription, msg types.Message) {
	select {
	case c.eventChan <- feedEvent{sub: sub, msg: msg}:
	case <-sub.Done():
	case <-c.stop:
	}
}

func (c *Client) Login(ctx context.Context, username string, password []byte) error {
	return c.session.Login(ctx, username, password)
}

// Connected reports whether the transport connection is open.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

func (c *Client) Authenticated() bool {
	return c.session.Authenticated()
}

func (c *Client) ListRooms(ctx context.Context) ([]types.Room, error) {
	return c.directory.ListRooms(ctx)
}

// SelectRoom makes roomId the active room: it subscribes to its live feed
// and then seeds the feed with a history snapshot. Selecting the room that
// is already active does nothing.
func (c *Client) SelectRoom(ctx context.Context, roomId string) error {
	if err := c.session.require("select room"); err != nil {
		return err
	}

	req := &switchReq{ctx: ctx, roomId: roomId, result: make(chan switchResult, 1)}
	select {
	case c.switchChan <- req:
	case <-ctx.Done():
		return newError(KindConnectivity, "select room", ctx.Err())
	case <-c.done:
		return newError(KindConnectivity, "select room", errStopped)
	}

	res := <-req.result
	if res.err != nil {
		return res.err
	}
	if res.noop {
		return nil
	}

	return c.loadHistory(ctx, roomId, res.gen)
}

// RefreshHistory fetches the active room's snapshot again, for example
// after SelectRoom reported a fetch error.
func (c *Client) RefreshHistory(ctx context.Context) error {
	st, err := c.state(ctx)
	if err != nil {
		return err
	}
	if st.view.RoomId == "" {
		return newError(KindFetch, "refresh history", errNoRoom)
	}

	return c.loadHistory(ctx, st.view.RoomId, st.gen)
}

func (c *Client) loadHistory(ctx context.Context, roomId string, gen uint64) error {
	messages, err := c.history.FetchHistory(ctx, roomId)
	if err != nil {
		return err
	}

	select {
	case c.seedChan <- &seedReq{gen: gen, roomId: roomId, messages: messages}:
		return nil
	case <-ctx.Done():
		return newError(KindFetch, "fetch history", ctx.Err())
	case <-c.done:
		return newError(KindFetch, "fetch history", errStopped)
	}
}

// SendMessage posts text to the active room.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	st, err := c.state(ctx)
	if err != nil {
		return newError(KindSend, "send message", err)
	}
	return c.composer.SendMessage(ctx, st.view.RoomId, text)
}

// Logout leaves the active room, then ends the session. The client is
// logged out locally even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case c.resetChan <- ack:
		<-ack
	case <-ctx.Done():
		return newError(KindLogout, "logout", ctx.Err())
	case <-c.done:
	}

	return c.session.Logout(ctx)
}

func (c *Client) View(ctx context.Context) (View, error) {
	st, err := c.state(ctx)
	if err != nil {
		return View{}, err
	}
	return st.view, nil
}

func (c *Client) state(ctx context.Context) (state, error) {
	reply := make(chan state, 1)
	select {
	case c.stateChan <- reply:
		return <-reply, nil
	case <-ctx.Done():
		return state{}, ctx.Err()
	case <-c.done:
		return state{}, errStopped
	}
}

// Updates delivers the latest view after every change. Views that were not
// read in time are replaced by newer ones.
func (c *Client) Updates() <-chan View {
	return c.updates
}

// Shutdown releases the live subscription and stops the run loop.
func (c *Client) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stop) })

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
