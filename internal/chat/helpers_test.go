package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/testutil"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// respondWith decodes body into the out argument of a mocked Get call.
func respondWith(body string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		if err := json.Unmarshal([]byte(body), args.Get(3)); err != nil {
			panic(err)
		}
	}
}

func loggedInSession(t *testing.T, mt *transport.MockTransport) *Session {
	mt.On("Connect", mock.Anything).Return(nil).Once()
	mt.On("LoginWithPassword", mock.Anything, "alice", mock.Anything).
		Return(transport.Credentials{UserId: "u-alice", Token: "tok"}, nil).Once()

	s := NewSession(mt, testutil.TestLogger(t))
	require.NoError(t, s.Login(context.Background(), "alice", []byte("secret")))
	return s
}

func permissiveStats() *stats.MockStatsUpdater {
	return new(stats.MockStatsUpdater).Permissive()
}

func rawMessage(id, roomId, text string, ms int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"_id":%q,"rid":%q,"msg":%q,"ts":{"$date":%d},"u":{"_id":"u1","username":"alice"}}`,
		id, roomId, text, ms))
}

func bodies(v View) []string {
	out := make([]string, 0, len(v.Messages))
	for _, m := range v.Messages {
		out = append(out, m.Body)
	}
	return out
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
