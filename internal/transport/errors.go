package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("connection closed")
	ErrNotLoggedIn  = errors.New("not logged in")
)

// MethodError is the error object of a failed DDP method call or
// subscription.
type MethodError struct {
	Code    any    `json:"error,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Type    string `json:"errorType,omitempty"`
}

func (e *MethodError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("ddp error %v: %s", e.Code, e.Reason)
	case e.Message != "":
		return fmt.Sprintf("ddp error %v: %s", e.Code, e.Message)
	default:
		return fmt.Sprintf("ddp error %v", e.Code)
	}
}

// HTTPError is returned by REST calls that answer with a non-2xx status
// or with "success": false.
type HTTPError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.ToLower(http.StatusText(e.StatusCode)))
}

func (e *HTTPError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}
