package transport

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockTransport) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}
func (m *MockTransport) LoginWithPassword(ctx context.Context, username, digest string) (Credentials, error) {
	args := m.Called(ctx, username, digest)
	return args.Get(0).(Credentials), args.Error(1)
}
func (m *MockTransport) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockTransport) Get(ctx context.Context, path string, query url.Values, out any) error {
	args := m.Called(ctx, path, query, out)
	return args.Error(0)
}
func (m *MockTransport) Post(ctx context.Context, path string, body, out any) error {
	args := m.Called(ctx, path, body, out)
	return args.Error(0)
}
func (m *MockTransport) Stream(ctx context.Context, name, key string, fn func(json.RawMessage)) (Stopper, error) {
	args := m.Called(ctx, name, key, fn)
	if s, ok := args.Get(0).(Stopper); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockStopper struct {
	mock.Mock
	// Ended backs Done. Closing it ends the stream as a dropped connection
	// would; nil never ends.
	Ended chan struct{}
}

func (m *MockStopper) Stop() {
	m.Called()
}

func (m *MockStopper) Done() <-chan struct{} {
	return m.Ended
}
