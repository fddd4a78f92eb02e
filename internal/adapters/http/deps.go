package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fleetview/internal/adapters/valkey"
	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/core/usecases"
)

// StateEvents delivers state-change notifications to the WebSocket relay.
type StateEvents interface {
	SubscribeStateChanges(ctx context.Context, handler func(change *domain.StateChange)) (func(), error)
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Tracking *usecases.TrackingService
	Events   StateEvents
	NATS     *nats.Conn
	Cache    *valkey.Cache
}

func (d *Dependencies) store() *usecases.TrackingStore {
	return d.Tracking.Store()
}
