package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/core/ports"
	"github.com/samirrijal/fleetview/internal/pkg/geospatial"
	"github.com/samirrijal/fleetview/internal/pkg/metrics"
	"github.com/samirrijal/fleetview/internal/pkg/timeutil"
)

var tracer = otel.Tracer("github.com/samirrijal/fleetview/internal/core/usecases")

// Simplifier reduces a route while keeping order and approximate shape.
type Simplifier func(points []domain.RoutePoint, tolerance float64) []domain.RoutePoint

// Prettify is the default Simplifier: tolerance is in metres.
func Prettify(points []domain.RoutePoint, tolerance float64) []domain.RoutePoint {
	return geospatial.Simplify(points, tolerance, routePointCoord)
}

func routePointCoord(p domain.RoutePoint) (float64, float64) {
	return p.Latitude, p.Longitude
}

// TrackingOptions tunes the fetch procedures.
type TrackingOptions struct {
	// DuplicateSessionFetch repeats the session call in GetUserData.
	// TODO: drop the second call once the backend's session endpoint is
	// confirmed to have no side effects on first read.
	DuplicateSessionFetch bool
	// RouteTolerance is passed to the Simplifier.
	RouteTolerance float64
	// DefaultWindow is how far before and after now the report window
	// reaches when no bound is set or requested.
	DefaultWindow time.Duration
	// RouteCacheTTL caches route reports per device and window. 0 disables.
	RouteCacheTTL int
}

// DefaultTrackingOptions returns the settings the map UI expects.
func DefaultTrackingOptions() TrackingOptions {
	return TrackingOptions{
		DuplicateSessionFetch: true,
		RouteTolerance:        1,
		DefaultWindow:         24 * time.Hour,
	}
}

// PathQuery carries the page query parameters that steer GetPath. All are
// optional.
type PathQuery struct {
	From     string
	To       string
	DeviceID string
}

// PathResult summarises a committed GetPath.
type PathResult struct {
	DeviceID  int64          `json:"device_id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	RawPoints int            `json:"raw_points"`
	Points    int            `json:"points"`
	Bounds    *domain.Bounds `json:"bounds,omitempty"`
	Version   uint64         `json:"version"`
}

// TrackingService runs the fetch procedures that fill a TrackingStore.
type TrackingService struct {
	api      ports.TrackingAPI
	store    *TrackingStore
	cache    ports.CacheService
	clock    timeutil.Clock
	simplify Simplifier
	opts     TrackingOptions
}

// NewTrackingService creates a new TrackingService. cache may be nil.
func NewTrackingService(api ports.TrackingAPI, store *TrackingStore, cache ports.CacheService, clock timeutil.Clock, opts TrackingOptions) *TrackingService {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TrackingService{
		api:      api,
		store:    store,
		cache:    cache,
		clock:    clock,
		simplify: Prettify,
		opts:     opts,
	}
}

// WithSimplifier replaces the route simplifier.
func (s *TrackingService) WithSimplifier(fn Simplifier) *TrackingService {
	s.simplify = fn
	return s
}

// Store returns the store the service writes to.
func (s *TrackingService) Store() *TrackingStore {
	return s.store
}

// GetUserData refreshes devices, session and geofences, in that order.
// The first failing call ends the procedure; earlier writes stay.
func (s *TrackingService) GetUserData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "TrackingService.GetUserData")
	defer span.End()

	devices, err := s.api.Devices(ctx)
	if err != nil {
		return s.fail(ctx, "devices", classify(err), err)
	}
	s.store.SetDevices(devices)

	session, err := s.api.Session(ctx)
	if err != nil {
		return s.fail(ctx, "session", classify(err), err)
	}
	s.store.SetSession(session)

	if s.opts.DuplicateSessionFetch {
		slog.DebugContext(ctx, "fetching session a second time")
		session, err = s.api.Session(ctx)
		if err != nil {
			return s.fail(ctx, "session", classify(err), err)
		}
		s.store.SetSession(session)
	}

	geofences, err := s.api.Geofences(ctx)
	if err != nil {
		return s.fail(ctx, "geofences", classify(err), err)
	}
	s.store.SetGeofences(geofences)

	span.SetAttributes(
		attribute.Int("devices", len(devices)),
		attribute.Int("geofences", len(geofences)),
	)
	return nil
}

// GetPath resolves the report window, refreshes user data, picks a device,
// fetches and simplifies its route and commits route, path and timestamps
// together. A window bound already in state wins over the query; a bound
// still unset at commit time is filled with the resolved value.
func (s *TrackingService) GetPath(ctx context.Context, q PathQuery) (*PathResult, error) {
	token := s.store.beginPath()

	ctx, span := tracer.Start(ctx, "TrackingService.GetPath")
	defer span.End()

	now := s.clock.Now()
	from, err := resolveBound(s.store.From(), q.From, now.Add(-s.opts.DefaultWindow))
	if err != nil {
		return nil, s.fail(ctx, "from", KindInvalidWindow, err)
	}
	to, err := resolveBound(s.store.To(), q.To, now.Add(s.opts.DefaultWindow))
	if err != nil {
		return nil, s.fail(ctx, "to", KindInvalidWindow, err)
	}

	if err := s.GetUserData(ctx); err != nil {
		return nil, err
	}

	device, err := SelectDevice(s.store.Devices(), q.DeviceID)
	if err != nil {
		return nil, s.fail(ctx, "device", KindNoDevice, err)
	}
	span.SetAttributes(attribute.Int64("device.id", device.ID))

	raw, err := s.fetchRoute(ctx, device.ID, from, to)
	if err != nil {
		return nil, s.fail(ctx, "route", classify(err), err)
	}

	route := s.simplify(raw, s.opts.RouteTolerance)
	metrics.RoutePointsRaw.Observe(float64(len(raw)))
	metrics.RoutePointsSimplified.Observe(float64(len(route)))

	path := make([]domain.LonLat, len(route))
	timestamps := make([]int64, len(route))
	for i, p := range route {
		path[i] = domain.LonLat{p.Longitude, p.Latitude}
		ms, err := timeutil.FixTimeMillis(p.FixTime)
		if err != nil {
			return nil, s.fail(ctx, "route", KindMalformed, fmt.Errorf("point %d: %w", i, err))
		}
		timestamps[i] = ms
	}

	change, ok := s.store.commitPath(token, from, to, route, path, timestamps)
	if !ok {
		metrics.SupersededPaths.Inc()
		span.SetStatus(codes.Error, ErrSuperseded.Error())
		return nil, ErrSuperseded
	}

	result := &PathResult{
		DeviceID:  device.ID,
		From:      from,
		To:        to,
		RawPoints: len(raw),
		Points:    len(route),
		Version:   change.Version,
	}
	if minLat, minLon, maxLat, maxLon, ok := geospatial.Extent(route, routePointCoord); ok {
		result.Bounds = &domain.Bounds{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}
	}

	slog.InfoContext(ctx, "path updated",
		"device_id", device.ID, "from", from, "to", to,
		"raw_points", len(raw), "points", len(route))
	return result, nil
}

// NewPathUpdate packages the path a successful GetPath committed so it can
// be applied to another store.
func NewPathUpdate(result *PathResult, st domain.TrackingState, at time.Time) *domain.PathUpdate {
	return &domain.PathUpdate{
		DeviceID:   result.DeviceID,
		From:       result.From,
		To:         result.To,
		Route:      st.Route,
		Path:       st.Path,
		Timestamps: st.Timestamps,
		At:         at,
	}
}

func (s *TrackingService) fetchRoute(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
	cacheKey := fmt.Sprintf("route:%d:%s:%s", deviceID, from, to)
	if s.cache != nil && s.opts.RouteCacheTTL > 0 {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var points []domain.RoutePoint
			if err := json.Unmarshal(data, &points); err == nil {
				metrics.CacheHits.WithLabelValues("route").Inc()
				return points, nil
			}
			_ = s.cache.Delete(ctx, cacheKey)
		}
		metrics.CacheMisses.WithLabelValues("route").Inc()
	}

	points, err := s.api.Route(ctx, deviceID, from, to)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.opts.RouteCacheTTL > 0 {
		if data, err := json.Marshal(points); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.opts.RouteCacheTTL)
		}
	}
	return points, nil
}

func (s *TrackingService) fail(ctx context.Context, step string, kind ErrorKind, err error) error {
	metrics.FetchFailures.WithLabelValues(step, string(kind)).Inc()

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, step)

	return &FetchError{Kind: kind, Step: step, Err: err}
}

// resolveBound picks the stored bound, else the requested one, else the
// fallback, and renders it in ISO form.
func resolveBound(stored *string, requested string, fallback time.Time) (string, error) {
	switch {
	case !unsetBound(stored):
		return timeutil.NormalizeWindow(*stored)
	case requested != "":
		return timeutil.NormalizeWindow(requested)
	default:
		return timeutil.FormatISO(fallback), nil
	}
}

// SelectDevice returns the device whose id matches the leading integer of
// rawID, skipping entries without an id, and otherwise the first device.
func SelectDevice(devices []domain.Device, rawID string) (domain.Device, error) {
	if id, ok := leadingInt(rawID); ok {
		for _, d := range devices {
			if d.ID != 0 && d.ID == id {
				return d, nil
			}
		}
	}
	if len(devices) == 0 {
		return domain.Device{}, ErrNoDevice
	}
	return devices[0], nil
}

// leadingInt parses an optionally signed run of digits at the start of s,
// ignoring leading whitespace and anything after the digits ("12abc" is 12).
// A run too long for int64 does not parse.
func leadingInt(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\n\r")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}

	var n int64
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		d := int64(s[digits] - '0')
		if n > (math.MaxInt64-d)/10 {
			return 0, false
		}
		n = n*10 + d
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
