package chat

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/npezzotti/go-chatclient/internal/testutil"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTransport counts REST reads made through it.
type countingTransport struct {
	transport.Transport
	gets atomic.Int32
}

func (c *countingTransport) Get(ctx context.Context, path string, query url.Values, out any) error {
	c.gets.Add(1)
	return c.Transport.Get(ctx, path, query, out)
}

func TestEndToEnd(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	srv.AddUser("alice", DigestPassword([]byte("password")))
	srv.AddRoom("r1", "general", "General")
	srv.AddHistory("r1", "m1", "hi", time.UnixMilli(100))

	tr, err := transport.NewClient(srv.URL, testutil.TestLogger(t))
	require.NoError(t, err)
	defer tr.Close()
	counted := &countingTransport{Transport: tr}

	c := NewClient(counted, permissiveStats(), Options{HistoryCount: 50}, testutil.TestLogger(t))
	go c.Run()
	defer c.Shutdown(context.Background())

	ctx := testContext(t)

	require.NoError(t, c.Login(ctx, "alice", []byte("password")))
	assert.True(t, c.Authenticated())

	rooms, err := c.ListRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Room{{Id: "r1", Name: "General", Type: "c"}}, rooms)

	require.NoError(t, c.SelectRoom(ctx, "r1"))
	srv.Emit("r1", "m2", "yo", time.UnixMilli(200))

	viewBodies := func() []string {
		v, err := c.View(ctx)
		if err != nil {
			return nil
		}
		return bodies(v)
	}

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"hi", "yo"}, viewBodies())
	}, 2*time.Second, 10*time.Millisecond)

	fetches := counted.gets.Load()
	require.NoError(t, c.SelectRoom(ctx, "r1"))
	assert.Equal(t, fetches, counted.gets.Load(), "expected no history fetch on reselect")
	assert.Equal(t, []string{"hi", "yo"}, viewBodies())
	assert.Equal(t, 1, srv.Subscribers("r1"))

	require.NoError(t, c.SendMessage(ctx, "hello"))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"hi", "yo", "hello"}, viewBodies())
	}, 2*time.Second, 10*time.Millisecond, "expected the server echo to reach the feed")

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, viewBodies())
	assert.False(t, c.Authenticated())
	assert.Eventually(t, func() bool { return srv.Subscribers("r1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndFeedLoss(t *testing.T) {
	srv := testutil.NewFakeServer(t)
	srv.AddUser("alice", DigestPassword([]byte("password")))
	srv.AddRoom("r1", "general", "General")
	srv.AddHistory("r1", "m1", "hi", time.UnixMilli(100))

	tr, err := transport.NewClient(srv.URL, testutil.TestLogger(t))
	require.NoError(t, err)
	defer tr.Close()

	c := NewClient(tr, permissiveStats(), Options{}, testutil.TestLogger(t))
	go c.Run()
	defer c.Shutdown(context.Background())

	ctx := testContext(t)
	view := func() View {
		v, err := c.View(ctx)
		if err != nil {
			return View{}
		}
		return v
	}

	require.NoError(t, c.Login(ctx, "alice", []byte("password")))
	require.NoError(t, c.SelectRoom(ctx, "r1"))

	t.Run("nosub", func(t *testing.T) {
		srv.EndSubscriptions("r1")
		assert.Eventually(t, func() bool { return view().RoomId == "" }, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, c.SelectRoom(ctx, "r1"))
		assert.Equal(t, 1, srv.Subscribers("r1"))
		assert.Equal(t, []string{"hi"}, bodies(view()))
	})

	t.Run("dropped connection", func(t *testing.T) {
		srv.DropConnections()
		assert.Eventually(t, func() bool {
			return view().RoomId == "" && !c.Connected()
		}, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, c.Login(ctx, "alice", []byte("password")))
		require.NoError(t, c.SelectRoom(ctx, "r1"))
		assert.Eventually(t, func() bool { return srv.Subscribers("r1") == 1 }, 2*time.Second, 10*time.Millisecond)

		srv.Emit("r1", "m9", "back", time.UnixMilli(900))
		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual([]string{"hi", "back"}, bodies(view()))
		}, 2*time.Second, 10*time.Millisecond, "expected live events after reselect")
	})
}
