package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/fleetview/internal/core/domain"
)

// TrackingAPI is the remote tracking backend. Every call is a single GET
// whose JSON body is decoded into the returned value.
type TrackingAPI interface {
	// Devices calls GET devices.
	Devices(ctx context.Context) ([]domain.Device, error)
	// Session calls GET session.
	Session(ctx context.Context) (domain.Session, error)
	// Geofences calls GET /geofences.
	Geofences(ctx context.Context) ([]domain.Geofence, error)
	// Route calls GET /reports/route for one device over [from, to].
	// from and to are passed through verbatim.
	Route(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error)
}

// Errors a TrackingAPI implementation wraps so callers can classify failures
// without knowing the transport. Anything else is treated as a network error.
var (
	ErrUnexpectedStatus  = errors.New("unexpected response status")
	ErrMalformedResponse = errors.New("malformed response")
)
