package mocks

import (
	"context"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLinkStore struct {
	mock.Mock
}

func (m *MockLinkStore) FindLink(ctx context.Context, field domain.LinkField, value string) (*domain.Link, error) {
	args := m.Called(ctx, field, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockLinkStore) InsertLink(ctx context.Context, link *domain.Link) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) GetLink(ctx context.Context, shortKey string) (*domain.Link, error) {
	args := m.Called(ctx, shortKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockCacheRepository) SetLink(ctx context.Context, link *domain.Link, ttl time.Duration) error {
	args := m.Called(ctx, link, ttl)
	return args.Error(0)
}

type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) GetStats(ctx context.Context, link *domain.Link) (*domain.LinkStats, error) {
	args := m.Called(ctx, link)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LinkStats), args.Error(1)
}

type MockVisitSink struct {
	mock.Mock
}

func (m *MockVisitSink) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	args := m.Called(ctx, visit)
	return args.Error(0)
}
