package mocks

import (
	"context"
	"time"

	"contractapi/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockContractRepository struct {
	mock.Mock
}

func (m *MockContractRepository) Create(ctx context.Context, c *model.Contract) (*model.Contract, error) {
	args := m.Called(ctx, c)
	if f, ok := args.Get(0).(func(context.Context, *model.Contract) *model.Contract); ok {
		return f(ctx, c), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}

func (m *MockContractRepository) FindByID(ctx context.Context, id string) (*model.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}

func (m *MockContractRepository) FindByShortID(ctx context.Context, shortID string) (*model.Contract, error) {
	args := m.Called(ctx, shortID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}

func (m *MockContractRepository) ShortIDExists(ctx context.Context, shortID string) (bool, error) {
	args := m.Called(ctx, shortID)
	return args.Bool(0), args.Error(1)
}

func (m *MockContractRepository) MarkSigned(ctx context.Context, id, signedFilePath, signerID string, signedAt time.Time) (*model.Contract, error) {
	args := m.Called(ctx, id, signedFilePath, signerID, signedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}
