package mocks

import (
	"context"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLivenessChecker struct {
	mock.Mock
}

func (m *MockLivenessChecker) IsDead(ctx context.Context, rawURL string) (bool, error) {
	args := m.Called(ctx, rawURL)
	return args.Bool(0), args.Error(1)
}

type MockGeoResolver struct {
	mock.Mock
}

func (m *MockGeoResolver) Resolve(ctx context.Context, ip string) (*domain.GeoInfo, error) {
	args := m.Called(ctx, ip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GeoInfo), args.Error(1)
}
