package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/npezzotti/go-chatclient/internal/testutil"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const secretDigest = "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"

func TestSessionLogin(t *testing.T) {
	tcases := []struct {
		name       string
		connectErr error
		loginErr   error
		expected   error
	}{
		{
			name: "success",
		},
		{
			name:       "unreachable server",
			connectErr: errors.New("dial: connection refused"),
			expected:   ErrConnectivity,
		},
		{
			name:     "rejected credentials",
			loginErr: &transport.MethodError{Code: 403, Reason: "User not found"},
			expected: ErrAuth,
		},
		{
			name:     "connection dropped mid login",
			loginErr: transport.ErrClosed,
			expected: ErrConnectivity,
		},
		{
			name:     "malformed result",
			loginErr: errors.New("login result has no token"),
			expected: ErrAuth,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mt := new(transport.MockTransport)
			mt.On("Connect", mock.Anything).Return(tc.connectErr)
			if tc.connectErr == nil {
				mt.On("LoginWithPassword", mock.Anything, "alice", secretDigest).
					Return(transport.Credentials{UserId: "u-alice", Token: "tok"}, tc.loginErr)
			}

			s := NewSession(mt, testutil.TestLogger(t))
			password := []byte("secret")
			err := s.Login(context.Background(), "alice", password)

			assert.Equal(t, []byte{0, 0, 0, 0, 0, 0}, password, "expected password to be cleared")
			if tc.expected != nil {
				assert.ErrorIs(t, err, tc.expected)
				assert.False(t, s.Authenticated(), "expected failed login to leave session unauthenticated")
				assert.Empty(t, s.UserId())
			} else {
				assert.NoError(t, err)
				assert.True(t, s.Authenticated())
				assert.Equal(t, "u-alice", s.UserId())
			}
			mt.AssertExpectations(t)
		})
	}
}

func TestSessionLogout(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mt := new(transport.MockTransport)
		s := loggedInSession(t, mt)
		mt.On("Logout", mock.Anything).Return(nil)

		assert.NoError(t, s.Logout(context.Background()))
		assert.False(t, s.Authenticated())
	})

	t.Run("server failure still logs out", func(t *testing.T) {
		mt := new(transport.MockTransport)
		s := loggedInSession(t, mt)
		mt.On("Logout", mock.Anything).Return(transport.ErrNotConnected)

		err := s.Logout(context.Background())
		assert.ErrorIs(t, err, ErrLogout)
		assert.ErrorIs(t, err, transport.ErrNotConnected)
		assert.False(t, s.Authenticated())
	})
}
