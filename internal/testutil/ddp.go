package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const (
	FakeToken   = "fake-token"
	RoomsStream = "stream-room-messages"
)

type fakeFrame struct {
	Msg    string            `json:"msg"`
	Id     string            `json:"id,omitempty"`
	Method string            `json:"method,omitempty"`
	Name   string            `json:"name,omitempty"`
	Params []json.RawMessage `json:"params,omitempty"`
}

type fakeSub struct {
	conn *fakeConn
	id   string
	key  string
}

type fakeConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *fakeConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteJSON(v)
}

// SentMessage records a chat.sendMessage call received by FakeServer.
type SentMessage struct {
	RoomId string
	Text   string
}

// FakeServer is an in-process stand-in for a Rocket.Chat server: DDP over
// /websocket plus the REST endpoints the client uses.
type FakeServer struct {
	*httptest.Server

	t        *testing.T
	upgrader websocket.Upgrader

	mu         sync.Mutex
	digests    map[string]string
	rooms      []map[string]any
	history    map[string][]map[string]any
	sent       []SentMessage
	subs       map[string]*fakeSub
	conns      map[*fakeConn]struct{}
	rejectSubs bool
	echo       bool
	nextId     int
	logins     int
}

func NewFakeServer(t *testing.T) *FakeServer {
	s := &FakeServer{
		t:       t,
		digests: make(map[string]string),
		history: make(map[string][]map[string]any),
		subs:    make(map[string]*fakeSub),
		conns:   make(map[*fakeConn]struct{}),
		echo:    true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /websocket", s.serveWs)
	mux.HandleFunc("GET /api/v1/subscriptions.get", s.auth(s.subscriptions))
	mux.HandleFunc("GET /api/v1/channels.history", s.auth(s.channelHistory))
	mux.HandleFunc("POST /api/v1/chat.sendMessage", s.auth(s.sendMessage))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// Close drops every websocket before shutting the HTTP server down.
func (s *FakeServer) Close() {
	s.DropConnections()
	s.Server.Close()
}

// DropConnections closes every open websocket without a DDP goodbye, as a
// network failure would. The server keeps accepting new connections.
func (s *FakeServer) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.ws.Close()
	}
}

// EndSubscriptions ends every subscription to roomId from the server side.
func (s *FakeServer) EndSubscriptions(roomId string) {
	s.mu.Lock()
	var ended []*fakeSub
	for id, sub := range s.subs {
		if sub.key == roomId {
			ended = append(ended, sub)
			delete(s.subs, id)
		}
	}
	s.mu.Unlock()

	for _, sub := range ended {
		sub.conn.send(map[string]any{"msg": "nosub", "id": sub.id})
	}
}

func (s *FakeServer) AddUser(username, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[username] = digest
}

func (s *FakeServer) AddRoom(id, name, fname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = append(s.rooms, map[string]any{
		"_id":   "sub-" + id,
		"rid":   id,
		"name":  name,
		"fname": fname,
		"t":     "c",
	})
}

// AddHistory appends a message to the snapshot returned by channels.history.
func (s *FakeServer) AddHistory(roomId, id, text string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[roomId] = append(s.history[roomId], map[string]any{
		"_id": id,
		"rid": roomId,
		"msg": text,
		"ts":  ts.UTC().Format(time.RFC3339Nano),
		"u":   map[string]any{"_id": "u1", "username": "alice", "name": "Alice"},
	})
}

func (s *FakeServer) RejectSubscriptions(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSubs = reject
}

func (s *FakeServer) EchoSends(echo bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echo = echo
}

func (s *FakeServer) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}

func (s *FakeServer) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Subscribers counts live stream subscriptions for a room.
func (s *FakeServer) Subscribers(roomId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sub := range s.subs {
		if sub.key == roomId {
			n++
		}
	}
	return n
}

// Emit pushes a message event to every subscriber of roomId.
func (s *FakeServer) Emit(roomId, id, text string, ts time.Time) {
	s.EmitRaw(roomId, map[string]any{
		"_id": id,
		"rid": roomId,
		"msg": text,
		"ts":  map[string]any{"$date": ts.UnixMilli()},
		"u":   map[string]any{"_id": "u1", "username": "alice", "name": "Alice"},
	})
}

// EmitRaw pushes an arbitrary event argument to every subscriber of key.
func (s *FakeServer) EmitRaw(key string, arg any) {
	s.mu.Lock()
	var targets []*fakeSub
	for _, sub := range s.subs {
		if sub.key == key {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		err := sub.conn.send(map[string]any{
			"msg":        "changed",
			"collection": RoomsStream,
			"id":         "id",
			"fields": map[string]any{
				"eventName": key,
				"args":      []any{arg},
			},
		})
		if err != nil {
			s.t.Logf("emit to %s: %v", sub.id, err)
		}
	}
}

func (s *FakeServer) serveWs(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.t.Logf("upgrade: %v", err)
		return
	}

	conn := &fakeConn{ws: ws}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		for id, sub := range s.subs {
			if sub.conn == conn {
				delete(s.subs, id)
			}
		}
		s.mu.Unlock()
		ws.Close()
	}()

	for {
		var f fakeFrame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}

		switch f.Msg {
		case "connect":
			conn.send(map[string]any{"msg": "connected", "session": "fake-session"})
		case "ping":
			conn.send(map[string]any{"msg": "pong", "id": f.Id})
		case "method":
			conn.send(s.handleMethod(f))
		case "sub":
			conn.send(s.handleSub(conn, f))
		case "unsub":
			s.mu.Lock()
			delete(s.subs, f.Id)
			s.mu.Unlock()
			conn.send(map[string]any{"msg": "nosub", "id": f.Id})
		}
	}
}

func (s *FakeServer) handleMethod(f fakeFrame) map[string]any {
	switch f.Method {
	case "login":
		var p struct {
			User struct {
				Username string `json:"username"`
			} `json:"user"`
			Password struct {
				Digest    string `json:"digest"`
				Algorithm string `json:"algorithm"`
			} `json:"password"`
		}
		if len(f.Params) > 0 {
			json.Unmarshal(f.Params[0], &p)
		}

		s.mu.Lock()
		digest, ok := s.digests[p.User.Username]
		s.mu.Unlock()

		if !ok || digest != p.Password.Digest || p.Password.Algorithm != "sha-256" {
			return map[string]any{
				"msg": "result",
				"id":  f.Id,
				"error": map[string]any{
					"error":  403,
					"reason": "User not found",
				},
			}
		}

		s.mu.Lock()
		s.logins++
		s.mu.Unlock()

		return map[string]any{
			"msg": "result",
			"id":  f.Id,
			"result": map[string]any{
				"id":    "u-" + p.User.Username,
				"token": FakeToken,
			},
		}
	case "logout":
		return map[string]any{"msg": "result", "id": f.Id}
	default:
		return map[string]any{
			"msg":   "result",
			"id":    f.Id,
			"error": map[string]any{"error": 404, "reason": fmt.Sprintf("Method '%s' not found", f.Method)},
		}
	}
}

func (s *FakeServer) handleSub(conn *fakeConn, f fakeFrame) map[string]any {
	var key string
	if len(f.Params) > 0 {
		json.Unmarshal(f.Params[0], &key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejectSubs || f.Name != RoomsStream {
		return map[string]any{
			"msg":   "nosub",
			"id":    f.Id,
			"error": map[string]any{"error": "not-allowed", "reason": "Not allowed"},
		}
	}

	s.subs[f.Id] = &fakeSub{conn: conn, id: f.Id, key: key}
	return map[string]any{"msg": "ready", "subs": []string{f.Id}}
}

func (s *FakeServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != FakeToken || !strings.HasPrefix(r.Header.Get("X-User-Id"), "u-") {
			writeJson(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   "You must be logged in to do this.",
			})
			return
		}

		next(w, r)
	}
}

func (s *FakeServer) subscriptions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	rooms := append([]map[string]any{}, s.rooms...)
	s.mu.Unlock()

	writeJson(w, http.StatusOK, map[string]any{
		"update":  rooms,
		"remove":  []any{},
		"success": true,
	})
}

func (s *FakeServer) channelHistory(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("roomId")

	s.mu.Lock()
	messages := append([]map[string]any{}, s.history[roomId]...)
	s.mu.Unlock()

	if roomId == "" {
		writeJson(w, http.StatusBadRequest, map[string]any{"success": false, "error": "The parameter \"roomId\" is required"})
		return
	}

	writeJson(w, http.StatusOK, map[string]any{
		"messages": messages,
		"success":  true,
	})
}

func (s *FakeServer) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message struct {
			RoomId string `json:"rid"`
			Msg    string `json:"msg"`
		} `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message.RoomId == "" {
		writeJson(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid message"})
		return
	}

	s.mu.Lock()
	s.sent = append(s.sent, SentMessage{RoomId: req.Message.RoomId, Text: req.Message.Msg})
	s.nextId++
	id := fmt.Sprintf("sent-%d", s.nextId)
	echo := s.echo
	s.mu.Unlock()

	now := time.Now()
	if echo {
		s.Emit(req.Message.RoomId, id, req.Message.Msg, now)
	}

	writeJson(w, http.StatusOK, map[string]any{
		"message": map[string]any{"_id": id, "rid": req.Message.RoomId, "msg": req.Message.Msg},
		"success": true,
	})
}

func writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
