package services

import (
	"context"

	"github.com/ruralpay/ledger/internal/events"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockEligibility struct {
	mock.Mock
}

func (m *MockEligibility) IsEligible(ctx context.Context, offerID, actorID string) (bool, error) {
	args := m.Called(ctx, offerID, actorID)
	return args.Bool(0), args.Error(1)
}
