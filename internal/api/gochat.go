package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-chatclient/internal/chat"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/rs/zerolog"
)

// ChatState is the read-only view of the chat client the debug server
// exposes.
type ChatState interface {
	Connected() bool
	Authenticated() bool
	View(ctx context.Context) (chat.View, error)
	ListRooms(ctx context.Context) ([]types.Room, error)
}

// DebugServer serves the client's state and counters on a local address.
type DebugServer struct {
	log  zerolog.Logger
	srv  *http.Server
	chat ChatState
}

// NewDebugServer registers its routes on mux, which may already carry
// other handlers such as /debug/vars.
func NewDebugServer(mux *http.ServeMux, addr string, cs ChatState, logger zerolog.Logger) *DebugServer {
	s := &DebugServer{
		log:  logger.With().Str("component", "debug").Logger(),
		chat: cs,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /api/view", s.getView)
	mux.HandleFunc("GET /api/rooms", s.getRooms)

	var h http.Handler = mux
	h = noStore(h)
	h = handlers.CombinedLoggingHandler(accessLog{s.log}, h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: h,
	}

	return s
}

func (s *DebugServer) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting debug server")
	return s.srv.ListenAndServe()
}

func (s *DebugServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down debug server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

// accessLog feeds gorilla's combined log lines into zerolog.
type accessLog struct {
	log zerolog.Logger
}

func (a accessLog) Write(p []byte) (int, error) {
	n := len(p)
	if n > 0 && p[n-1] == '\n' {
		p = p[:n-1]
	}
	a.log.Debug().Msg(string(p))
	return n, nil
}
