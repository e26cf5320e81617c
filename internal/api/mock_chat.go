package api

import (
	"context"

	"github.com/npezzotti/go-chatclient/internal/chat"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockChatState struct {
	mock.Mock
}

func (m *MockChatState) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}
func (m *MockChatState) Authenticated() bool {
	args := m.Called()
	return args.Bool(0)
}
func (m *MockChatState) View(ctx context.Context) (chat.View, error) {
	args := m.Called(ctx)
	return args.Get(0).(chat.View), args.Error(1)
}
func (m *MockChatState) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]types.Room)
	return rooms, args.Error(1)
}
