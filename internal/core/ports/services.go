package ports

import (
	"context"

	"github.com/samirrijal/fleetview/internal/core/domain"
)

// EventPublisher broadcasts state-change events.
type EventPublisher interface {
	PublishStateChange(ctx context.Context, change *domain.StateChange) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
