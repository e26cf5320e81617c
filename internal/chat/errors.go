package chat

import (
	"errors"
	"net/http"

	"github.com/npezzotti/go-chatclient/internal/transport"
)

type Kind int

const (
	KindAuth Kind = iota + 1
	KindConnectivity
	KindFetch
	KindSend
	KindLogout
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindConnectivity:
		return "connectivity"
	case KindFetch:
		return "fetch"
	case KindSend:
		return "send"
	case KindLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// Error is returned by every chat operation. Kind tells the caller how to
// react; Err is the underlying transport error, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrFetch)
// works regardless of Op and Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAuth         = &Error{Kind: KindAuth}
	ErrConnectivity = &Error{Kind: KindConnectivity}
	ErrFetch        = &Error{Kind: KindFetch}
	ErrSend         = &Error{Kind: KindSend}
	ErrLogout       = &Error{Kind: KindLogout}
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// restError classifies a failed REST call. An expired session is an auth
// error whatever the operation was.
func restError(kind Kind, op string, err error) *Error {
	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		return newError(KindAuth, op, err)
	}
	if errors.Is(err, transport.ErrNotLoggedIn) {
		return newError(KindAuth, op, err)
	}
	return newError(kind, op, err)
}
