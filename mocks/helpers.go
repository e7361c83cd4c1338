package mocks

import (
	"testing"

	"go.uber.org/mock/gomock"
)

//go:generate mockgen -destination=mock_provider.go -package=mocks github.com/warp/payroll-engine/ratetable Provider
//go:generate mockgen -destination=mock_store.go -package=mocks github.com/warp/payroll-engine/records Store

// NewMockProviderForTest creates a new mock rate table Provider for testing
func NewMockProviderForTest(t *testing.T) *MockProvider {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockProvider(ctrl)
}

// NewMockStoreForTest creates a new mock records Store for testing
func NewMockStoreForTest(t *testing.T) *MockStore {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	return NewMockStore(ctrl)
}
