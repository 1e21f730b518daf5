package mocks

import (
	"context"
	"io"

	"contractapi/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockContractService struct {
	mock.Mock
}

func (m *MockContractService) Upload(ctx context.Context, clientID, contractType string, r io.Reader, size int64) (*model.Contract, error) {
	args := m.Called(ctx, clientID, contractType, r, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}

func (m *MockContractService) Sign(ctx context.Context, contractID, signerID string, r io.Reader, size int64) (*model.Contract, error) {
	args := m.Called(ctx, contractID, signerID, r, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}

func (m *MockContractService) Resolve(ctx context.Context, identifier string) (*model.Contract, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contract), args.Error(1)
}

func (m *MockContractService) FetchLatest(ctx context.Context, c *model.Contract) (io.ReadCloser, model.PayloadKind, error) {
	args := m.Called(ctx, c)
	rc, _ := args.Get(0).(io.ReadCloser)
	kind, _ := args.Get(1).(model.PayloadKind)
	return rc, kind, args.Error(2)
}

func (m *MockContractService) FetchPayload(ctx context.Context, c *model.Contract, kind model.PayloadKind) (io.ReadCloser, error) {
	args := m.Called(ctx, c, kind)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}
