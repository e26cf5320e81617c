package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-chatclient/internal/chat"
	"github.com/npezzotti/go-chatclient/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	s := &DebugServer{log: testutil.TestLogger(t)}

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := s.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.JSONEq(t, `{"status_code":500,"message":"internal server error"}`, rr.Body.String())
}

func Test_errorHandler_NoPanic(t *testing.T) {
	s := &DebugServer{log: testutil.TestLogger(t)}

	// simple handler that does not panic
	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := s.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func TestDebugServerRoutes(t *testing.T) {
	cs := new(MockChatState)
	cs.On("Connected").Return(true)
	cs.On("Authenticated").Return(false)

	s, _ := newTestServer(t, cs)
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestNoStore(t *testing.T) {
	cs := new(MockChatState)
	cs.On("View", mock.Anything).Return(chat.View{RoomId: "r1"}, nil)

	s, _ := newTestServer(t, cs)
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/view", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestErrorHandler_PanicValue(t *testing.T) {
	s := &DebugServer{log: testutil.TestLogger(t)}
	handler := s.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("not an error")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/view", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"status_code":500,"message":"internal server error"}`, rr.Body.String())
}

func TestAccessLogWrite(t *testing.T) {
	a := accessLog{log: testutil.TestLogger(t)}
	n, err := a.Write([]byte("127.0.0.1 - - \"GET /healthz HTTP/1.1\" 200 2\n"))
	assert.NoError(t, err)
	assert.Equal(t, 44, n)
}
