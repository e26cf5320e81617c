package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

// Client speaks DDP over a websocket and REST over HTTP to a single chat
// server. It is safe for concurrent use.
type Client struct {
	log        zerolog.Logger
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer

	mu    sync.RWMutex
	conn  *ddpConn
	creds Credentials
}

func NewClient(serverURL string, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q has no host", serverURL)
	}

	return &Client{
		log:        logger.With().Str("component", "transport").Logger(),
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dialer:     websocket.DefaultDialer,
	}, nil
}

func (c *Client) websocketURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/websocket"
	u.RawQuery = ""

	return u.String()
}

// Connect dials the server and completes the DDP handshake. Calling it
// while a connection is open is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.closed() {
		return nil
	}

	ws, _, err := c.dialer.DialContext(ctx, c.websocketURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	session, err := handshake(ctx, ws)
	if err != nil {
		ws.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	dc := newDDPConn(ws, session, c.log)
	c.conn = dc

	go dc.write()
	go dc.read()

	c.log.Info().Str("session", session).Msg("connected")
	return nil
}

func handshake(ctx context.Context, ws *websocket.Conn) (string, error) {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetWriteDeadline(deadline)
	ws.SetReadDeadline(deadline)
	defer func() {
		ws.SetWriteDeadline(time.Time{})
		ws.SetReadDeadline(time.Time{})
	}()

	if err := ws.WriteJSON(ConnectFrame()); err != nil {
		return "", err
	}

	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			return "", err
		}

		switch f.Msg {
		case msgConnected:
			return f.Session, nil
		case msgFailed:
			return "", fmt.Errorf("server requires ddp version %q", f.Version)
		}
	}
}

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn != nil && !c.conn.closed()
}

func (c *Client) current() (*ddpConn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.conn.closed() {
		return nil, ErrNotConnected
	}

	return c.conn, nil
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	dc, err := c.current()
	if err != nil {
		return nil, err
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	ch := dc.expect(id)
	defer dc.forget(id)

	if err := dc.writeFrame(ctx, MethodFrame(id, method, params...)); err != nil {
		return nil, err
	}

	select {
	case f, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if f.Error != nil {
			return nil, f.Error
		}
		return f.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) LoginWithPassword(ctx context.Context, username, digest string) (Credentials, error) {
	res, err := c.call(ctx, "login", passwordLogin{
		User:     loginUser{Username: username},
		Password: loginPassword{Digest: digest, Algorithm: "sha-256"},
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("login: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(res, &creds); err != nil {
		return Credentials{}, fmt.Errorf("decode login result: %w", err)
	}
	if creds.Token == "" {
		return Credentials{}, fmt.Errorf("login result has no token")
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()

	c.log.Info().Str("user_id", creds.UserId).Msg("logged in")
	return creds, nil
}

// Logout ends the server session. Local credentials are dropped even when
// the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer func() {
		c.mu.Lock()
		c.creds = Credentials{}
		c.mu.Unlock()
	}()

	if _, err := c.call(ctx, "logout"); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return nil
}

func (c *Client) Stream(ctx context.Context, name, key string, fn func(json.RawMessage)) (Stopper, error) {
	dc, err := c.current()
	if err != nil {
		return nil, err
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	s := newStream(id, name, key, fn)
	s.onStop = func() {
		if dc.removeStream(id) {
			go dc.unsubscribe(id)
		}
	}

	// register first so events racing the ready frame are queued
	ch := dc.expect(id)
	dc.addStream(s)

	if err := dc.writeFrame(ctx, SubFrame(id, s.collection, key, false)); err != nil {
		dc.forget(id)
		s.Stop()
		return nil, err
	}

	select {
	case f, ok := <-ch:
		if !ok {
			s.Stop()
			return nil, ErrClosed
		}
		if f.Msg == msgNoSub {
			dc.removeStream(id)
			s.Stop()
			if f.Error != nil {
				return nil, f.Error
			}
			return nil, fmt.Errorf("subscription to %s rejected", s.collection)
		}
	case <-ctx.Done():
		dc.forget(id)
		s.Stop()
		return nil, ctx.Err()
	}

	go s.run()

	c.log.Debug().Str("sub", id).Str("stream", s.collection).Str("key", key).Msg("subscribed")
	return s, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	dc := c.conn
	c.conn = nil
	c.creds = Credentials{}
	c.mu.Unlock()

	if dc != nil {
		dc.close()
	}

	return nil
}

type ddpConn struct {
	ws       *websocket.Conn
	log      zerolog.Logger
	session  string
	send     chan *Frame
	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan *Frame
	streams map[string]*stream
}

func newDDPConn(ws *websocket.Conn, session string, logger zerolog.Logger) *ddpConn {
	return &ddpConn{
		ws:      ws,
		log:     logger.With().Str("session", session).Logger(),
		session: session,
		send:    make(chan *Frame, sendBufferSize),
		stop:    make(chan struct{}),
		pending: make(map[string]chan *Frame),
		streams: make(map[string]*stream),
	}
}

func (dc *ddpConn) write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		dc.ws.Close()
		dc.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case f := <-dc.send:
			b, err := json.Marshal(f)
			if err != nil {
				dc.log.Warn().Err(err).Msg("failed to serialize frame")
				continue
			}

			if !dc.writeMessage(websocket.TextMessage, b) {
				return
			}
		case <-dc.stop:
			dc.writeMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !dc.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (dc *ddpConn) writeMessage(msgType int, data []byte) bool {
	dc.ws.SetWriteDeadline(time.Now().Add(writeWait))

	if err := dc.ws.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			dc.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (dc *ddpConn) read() {
	defer func() {
		dc.shutdown()
		dc.log.Debug().Msg("read exiting")
	}()

	dc.ws.SetReadLimit(maxMessageSize)
	dc.ws.SetReadDeadline(time.Now().Add(pongWait))
	dc.ws.SetPongHandler(func(string) error { dc.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := dc.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				dc.log.Warn().Err(err).Msg("read")
			}
			return
		}
		dc.ws.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			dc.log.Warn().Err(err).Msg("error parsing frame")
			continue
		}

		dc.dispatch(&f)
	}
}

func (dc *ddpConn) dispatch(f *Frame) {
	switch f.Msg {
	case msgPing:
		dc.queue(PongFrame(f.Id))
	case msgResult:
		dc.resolve(f.Id, f)
	case msgReady:
		for _, id := range f.Subs {
			dc.resolve(id, f)
		}
	case msgNoSub:
		if !dc.resolve(f.Id, f) {
			// the server ended a live subscription
			if s := dc.takeStream(f.Id); s != nil {
				dc.log.Warn().Str("sub", f.Id).Msg("subscription ended by server")
				s.Stop()
			}
		}
	case msgChanged:
		dc.publish(f)
	}
}

func (dc *ddpConn) publish(f *Frame) {
	var fields StreamFields
	if err := json.Unmarshal(f.Fields, &fields); err != nil {
		dc.log.Warn().Err(err).Str("collection", f.Collection).Msg("invalid stream fields")
		return
	}

	dc.mu.Lock()
	var targets []*stream
	for _, s := range dc.streams {
		if s.matches(f.Collection, fields.EventName) {
			targets = append(targets, s)
		}
	}
	dc.mu.Unlock()

	for _, s := range targets {
		s.push(fields.Args)
	}
}

func (dc *ddpConn) queue(f *Frame) bool {
	select {
	case <-dc.stop:
		return false
	default:
	}

	select {
	case dc.send <- f:
	default:
		dc.log.Warn().Str("msg", f.Msg).Msg("failed to queue frame, channel is full")
		return false
	}

	return true
}

func (dc *ddpConn) writeFrame(ctx context.Context, f *Frame) error {
	select {
	case dc.send <- f:
		return nil
	case <-dc.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (dc *ddpConn) expect(id string) chan *Frame {
	ch := make(chan *Frame, 1)

	dc.mu.Lock()
	dc.pending[id] = ch
	dc.mu.Unlock()

	return ch
}

func (dc *ddpConn) forget(id string) {
	dc.mu.Lock()
	delete(dc.pending, id)
	dc.mu.Unlock()
}

func (dc *ddpConn) resolve(id string, f *Frame) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	ch, ok := dc.pending[id]
	if !ok {
		return false
	}

	delete(dc.pending, id)
	ch <- f
	return true
}

func (dc *ddpConn) addStream(s *stream) {
	dc.mu.Lock()
	dc.streams[s.id] = s
	dc.mu.Unlock()
}

func (dc *ddpConn) removeStream(id string) bool {
	return dc.takeStream(id) != nil
}

func (dc *ddpConn) takeStream(id string) *stream {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s, ok := dc.streams[id]
	if !ok {
		return nil
	}

	delete(dc.streams, id)
	return s
}

func (dc *ddpConn) closed() bool {
	select {
	case <-dc.stop:
		return true
	default:
		return false
	}
}

func (dc *ddpConn) close() {
	dc.stopOnce.Do(func() { close(dc.stop) })
}

// shutdown fails every pending call and stops every stream. It runs once
// the read pump exits.
func (dc *ddpConn) shutdown() {
	dc.mu.Lock()
	pending := dc.pending
	streams := dc.streams
	dc.pending = make(map[string]chan *Frame)
	dc.streams = make(map[string]*stream)
	dc.mu.Unlock()

	// streams end before the connection reports closed, so a caller that
	// reconnects never sees a live-looking stream of the old connection
	for _, s := range streams {
		s.Stop()
	}

	dc.close()
	dc.ws.Close()

	for _, ch := range pending {
		close(ch)
	}
}

// unsubscribe tells the server to drop subscription id. It waits for room
// in the send buffer instead of dropping the frame.
func (dc *ddpConn) unsubscribe(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if err := dc.writeFrame(ctx, UnsubFrame(id)); err != nil && !errors.Is(err, ErrClosed) {
		dc.log.Warn().Err(err).Str("sub", id).Msg("failed to send unsub")
	}
}
