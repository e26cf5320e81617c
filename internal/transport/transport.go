package transport

import (
	"context"
	"encoding/json"
	"net/url"
)

// Transport is the capability set the chat core consumes: a DDP session
// for login and push streams, plus authenticated REST calls.
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
	LoginWithPassword(ctx context.Context, username, digest string) (Credentials, error)
	Logout(ctx context.Context) error
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	// Stream subscribes to stream-<name> filtered by key. fn is called once
	// per event argument, in arrival order, from a goroutine owned by the
	// stream. Stop deregisters the subscription; a call to fn that was
	// already running may still finish after Stop returns.
	Stream(ctx context.Context, name, key string, fn func(json.RawMessage)) (Stopper, error)
	Close() error
}

type Stopper interface {
	Stop()
	// Done is closed once the stream is torn down, whether by Stop, by the
	// server ending the subscription or by the connection dropping.
	Done() <-chan struct{}
}

// Credentials is the resume token issued by a successful login.
type Credentials struct {
	UserId string `json:"id"`
	Token  string `json:"token"`
}
