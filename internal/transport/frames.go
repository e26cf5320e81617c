package transport

import (
	"encoding/json"
)

const (
	ddpVersion = "1"

	msgConnect   = "connect"
	msgConnected = "connected"
	msgFailed    = "failed"
	msgPing      = "ping"
	msgPong      = "pong"
	msgMethod    = "method"
	msgResult    = "result"
	msgSub       = "sub"
	msgUnsub     = "unsub"
	msgReady     = "ready"
	msgNoSub     = "nosub"
	msgChanged   = "changed"
)

// Frame is a single DDP message in either direction.
type Frame struct {
	Msg        string          `json:"msg,omitempty"`
	Id         string          `json:"id,omitempty"`
	Session    string          `json:"session,omitempty"`
	Version    string          `json:"version,omitempty"`
	Support    []string        `json:"support,omitempty"`
	Method     string          `json:"method,omitempty"`
	Name       string          `json:"name,omitempty"`
	Params     []any           `json:"params,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *MethodError    `json:"error,omitempty"`
	Subs       []string        `json:"subs,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
}

// StreamFields is the payload of a changed frame on a stream collection.
type StreamFields struct {
	EventName string            `json:"eventName"`
	Args      []json.RawMessage `json:"args"`
}

func ConnectFrame() *Frame {
	return &Frame{
		Msg:     msgConnect,
		Version: ddpVersion,
		Support: []string{ddpVersion},
	}
}

func PongFrame(id string) *Frame {
	return &Frame{
		Msg: msgPong,
		Id:  id,
	}
}

func MethodFrame(id, method string, params ...any) *Frame {
	return &Frame{
		Msg:    msgMethod,
		Id:     id,
		Method: method,
		Params: params,
	}
}

func SubFrame(id, name string, params ...any) *Frame {
	return &Frame{
		Msg:    msgSub,
		Id:     id,
		Name:   name,
		Params: params,
	}
}

func UnsubFrame(id string) *Frame {
	return &Frame{
		Msg: msgUnsub,
		Id:  id,
	}
}

func streamCollection(name string) string {
	return "stream-" + name
}

type passwordLogin struct {
	User     loginUser     `json:"user"`
	Password loginPassword `json:"password"`
}

type loginUser struct {
	Username string `json:"username"`
}

type loginPassword struct {
	Digest    string `json:"digest"`
	Algorithm string `json:"algorithm"`
}
