package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/rs/zerolog"
)

// Session gates every other operation: it holds the authenticated flag and
// the id of the logged in user.
type Session struct {
	log       zerolog.Logger
	transport transport.Transport

	mu     sync.RWMutex
	userId string
	authed bool
}

func NewSession(t transport.Transport, logger zerolog.Logger) *Session {
	return &Session{
		log:       logger.With().Str("component", "session").Logger(),
		transport: t,
	}
}

// Login connects if needed and authenticates with the password digest.
// password is zeroed before Login returns, whatever the outcome.
func (s *Session) Login(ctx context.Context, username string, password []byte) error {
	digest := DigestPassword(password)

	if err := s.transport.Connect(ctx); err != nil {
		return newError(KindConnectivity, "login", err)
	}

	creds, err := s.transport.LoginWithPassword(ctx, username, digest)
	if err != nil {
		var methodErr *transport.MethodError
		if errors.As(err, &methodErr) {
			return newError(KindAuth, "login", err)
		}
		if errors.Is(err, transport.ErrNotConnected) || errors.Is(err, transport.ErrClosed) ||
			errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return newError(KindConnectivity, "login", err)
		}
		return newError(KindAuth, "login", err)
	}

	s.mu.Lock()
	s.userId = creds.UserId
	s.authed = true
	s.mu.Unlock()

	s.log.Info().Str("username", username).Msg("logged in")
	return nil
}

// Logout marks the session unauthenticated before asking the server to end
// it, so a failed call still leaves the client logged out.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.userId = ""
	s.authed = false
	s.mu.Unlock()

	if err := s.transport.Logout(ctx); err != nil {
		s.log.Warn().Err(err).Msg("server logout failed")
		return newError(KindLogout, "logout", err)
	}

	s.log.Info().Msg("logged out")
	return nil
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authed
}

func (s *Session) UserId() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userId
}

func (s *Session) require(op string) error {
	if !s.Authenticated() {
		return newError(KindAuth, op, transport.ErrNotLoggedIn)
	}
	return nil
}
