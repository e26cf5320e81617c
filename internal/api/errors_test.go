package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/npezzotti/go-chatclient/internal/chat"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/stretchr/testify/assert"
)

func Test_chatError(t *testing.T) {
	tcases := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{name: "logged out", err: chat.ErrAuth, status: http.StatusUnauthorized, kind: "auth", message: "unauthorized"},
		{
			name:    "connection lost",
			err:     &chat.Error{Kind: chat.KindConnectivity, Op: "list rooms", Err: transport.ErrClosed},
			status:  http.StatusServiceUnavailable,
			kind:    "connectivity",
			message: "service unavailable",
		},
		{
			name:    "server refused",
			err:     &chat.Error{Kind: chat.KindFetch, Op: "list rooms", Err: &transport.HTTPError{StatusCode: 500}},
			status:  http.StatusBadGateway,
			kind:    "fetch",
			message: "bad gateway",
		},
		{name: "client loop gone", err: context.Canceled, status: http.StatusServiceUnavailable, message: "service unavailable"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			e := chatError(tc.err)
			assert.Equal(t, tc.status, e.StatusCode)
			assert.Equal(t, tc.kind, e.Kind)
			assert.Equal(t, tc.message, e.Message)
			assert.True(t, errors.Is(e, tc.err), "expected the cause to be kept")
		})
	}
}

func Test_invalidParam(t *testing.T) {
	e := invalidParam("limit")
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Equal(t, "invalid limit", e.Error())
}
