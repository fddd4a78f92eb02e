package usecases_test

import (
	"context"
	"errors"
	"sync"

	"github.com/samirrijal/fleetview/internal/core/domain"
)

// --- Mock TrackingAPI ---

type mockTrackingAPI struct {
	mu    sync.Mutex
	calls []string

	devicesFn   func(ctx context.Context) ([]domain.Device, error)
	sessionFn   func(ctx context.Context) (domain.Session, error)
	geofencesFn func(ctx context.Context) ([]domain.Geofence, error)
	routeFn     func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error)
}

func (m *mockTrackingAPI) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockTrackingAPI) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockTrackingAPI) Devices(ctx context.Context) ([]domain.Device, error) {
	m.record("devices")
	if m.devicesFn != nil {
		return m.devicesFn(ctx)
	}
	return []domain.Device{{ID: 1}, {ID: 2}}, nil
}

func (m *mockTrackingAPI) Session(ctx context.Context) (domain.Session, error) {
	m.record("session")
	if m.sessionFn != nil {
		return m.sessionFn(ctx)
	}
	return domain.Session(`{"id":1}`), nil
}

func (m *mockTrackingAPI) Geofences(ctx context.Context) ([]domain.Geofence, error) {
	m.record("/geofences")
	if m.geofencesFn != nil {
		return m.geofencesFn(ctx)
	}
	return []domain.Geofence{{ID: 9, Name: "Depot"}}, nil
}

func (m *mockTrackingAPI) Route(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
	m.record("/reports/route")
	if m.routeFn != nil {
		return m.routeFn(ctx, deviceID, from, to)
	}
	return nil, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: map[string][]byte{}} }

func (c *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (c *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu      sync.Mutex
	changes []domain.StateChange
}

func (p *mockPublisher) PublishStateChange(ctx context.Context, change *domain.StateChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, *change)
	return nil
}

func identity(points []domain.RoutePoint, _ float64) []domain.RoutePoint { return points }
