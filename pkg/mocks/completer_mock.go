package mocks

import (
	"context"

	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockCompleter is a mock implementation of protocol.Completer.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, req protocol.CompletionRequest) (*protocol.Completion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.Completion), args.Error(1)
}
