package mocks

import (
	"context"
	"net/http"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockShortenerService struct {
	mock.Mock
}

var _ interface {
	Shorten(ctx context.Context, longURL string) (*domain.Link, error)
	Resolve(ctx context.Context, shortKey string) (*domain.Link, error)
	Stats(ctx context.Context, shortKey string) (*domain.LinkStats, error)
} = (*MockShortenerService)(nil)

func (m *MockShortenerService) Shorten(ctx context.Context, longURL string) (*domain.Link, error) {
	args := m.Called(ctx, longURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockShortenerService) Resolve(ctx context.Context, shortKey string) (*domain.Link, error) {
	args := m.Called(ctx, shortKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockShortenerService) Stats(ctx context.Context, shortKey string) (*domain.LinkStats, error) {
	args := m.Called(ctx, shortKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LinkStats), args.Error(1)
}

type MockVisitRecorder struct {
	mock.Mock
}

func (m *MockVisitRecorder) Record(ctx context.Context, link *domain.Link, r *http.Request) {
	m.Called(ctx, link, r)
}
