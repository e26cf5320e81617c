package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-chatclient/internal/chat"
)

// ApiError is the body of every failed debug request. Kind names the chat
// error kind when the failure came from the chat client.
type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Kind       string `json:"kind,omitempty"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func newApiError(status int, err error) *ApiError {
	return &ApiError{
		StatusCode: status,
		Message:    strings.ToLower(http.StatusText(status)),
		Err:        err,
	}
}

func invalidParam(name string) *ApiError {
	e := newApiError(http.StatusBadRequest, nil)
	e.Message = "invalid " + name
	return e
}

// chatError maps a chat client failure to a response: 401 when logged out,
// 503 when the connection or the client loop is gone, and 502 when the chat
// server refused the request.
func chatError(err error) *ApiError {
	var ce *chat.Error
	if !errors.As(err, &ce) {
		return newApiError(http.StatusServiceUnavailable, err)
	}

	status := http.StatusBadGateway
	switch ce.Kind {
	case chat.KindAuth:
		status = http.StatusUnauthorized
	case chat.KindConnectivity:
		status = http.StatusServiceUnavailable
	}

	e := newApiError(status, err)
	e.Kind = ce.Kind.String()
	return e
}
