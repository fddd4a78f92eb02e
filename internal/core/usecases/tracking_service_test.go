package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/core/ports"
	"github.com/samirrijal/fleetview/internal/core/usecases"
	"github.com/samirrijal/fleetview/internal/pkg/timeutil"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newService(api *mockTrackingAPI) (*usecases.TrackingService, *usecases.TrackingStore, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(testNow)
	store := usecases.NewTrackingStore(clock, nil)
	svc := usecases.NewTrackingService(api, store, nil, clock, usecases.DefaultTrackingOptions()).
		WithSimplifier(identity)
	return svc, store, clock
}

func assertFetchError(t *testing.T, err error, kind usecases.ErrorKind, step string) {
	t.Helper()
	var fe *usecases.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Kind != kind || fe.Step != step {
		t.Errorf("expected %s at %s, got %s at %s", kind, step, fe.Kind, fe.Step)
	}
}

// --- GetUserData ---

func TestGetUserData_CallOrder(t *testing.T) {
	api := &mockTrackingAPI{}
	svc, store, _ := newService(api)

	if err := svc.GetUserData(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"devices", "session", "session", "/geofences"}
	if diff := cmp.Diff(want, api.Calls()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if len(store.Devices()) != 2 || len(store.Geofences()) != 1 || store.Session() == nil {
		t.Error("expected devices, session and geofences set")
	}
}

func TestGetUserData_SingleSessionWhenDisabled(t *testing.T) {
	api := &mockTrackingAPI{}
	opts := usecases.DefaultTrackingOptions()
	opts.DuplicateSessionFetch = false
	svc := usecases.NewTrackingService(api, usecases.NewTrackingStore(nil, nil), nil, nil, opts)

	if err := svc.GetUserData(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"devices", "session", "/geofences"}
	if diff := cmp.Diff(want, api.Calls()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestGetUserData_StopsAtFirstFailure(t *testing.T) {
	api := &mockTrackingAPI{
		sessionFn: func(ctx context.Context) (domain.Session, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc, store, _ := newService(api)

	err := svc.GetUserData(context.Background())
	assertFetchError(t, err, usecases.KindNetwork, "session")

	if len(store.Devices()) != 2 {
		t.Error("expected devices from the first step to persist")
	}
	if len(store.Geofences()) != 0 {
		t.Error("expected geofences untouched")
	}
	if diff := cmp.Diff([]string{"devices", "session"}, api.Calls()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestGetUserData_ClassifiesErrors(t *testing.T) {
	api := &mockTrackingAPI{
		devicesFn: func(ctx context.Context) ([]domain.Device, error) {
			return nil, fmt.Errorf("%w: HTTP 401", ports.ErrUnexpectedStatus)
		},
	}
	svc, _, _ := newService(api)
	assertFetchError(t, svc.GetUserData(context.Background()), usecases.KindStatus, "devices")

	api.devicesFn = nil
	api.geofencesFn = func(ctx context.Context) ([]domain.Geofence, error) {
		return nil, fmt.Errorf("%w: unexpected EOF", ports.ErrMalformedResponse)
	}
	assertFetchError(t, svc.GetUserData(context.Background()), usecases.KindMalformed, "geofences")
}

// --- GetPath ---

func TestGetPath_SelectsRequestedDevice(t *testing.T) {
	var gotDevice int64
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			gotDevice = deviceID
			return nil, nil
		},
	}
	svc, _, _ := newService(api)

	res, err := svc.GetPath(context.Background(), usecases.PathQuery{DeviceID: "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDevice != 2 || res.DeviceID != 2 {
		t.Errorf("expected device 2, got %d", gotDevice)
	}
}

func TestGetPath_FallsBackToFirstDevice(t *testing.T) {
	for _, raw := range []string{"", "abc", "99"} {
		var gotDevice int64
		api := &mockTrackingAPI{
			routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
				gotDevice = deviceID
				return nil, nil
			},
		}
		svc, _, _ := newService(api)

		if _, err := svc.GetPath(context.Background(), usecases.PathQuery{DeviceID: raw}); err != nil {
			t.Fatalf("deviceId=%q: unexpected error: %v", raw, err)
		}
		if gotDevice != 1 {
			t.Errorf("deviceId=%q: expected device 1, got %d", raw, gotDevice)
		}
	}
}

func TestGetPath_SingleFixScenario(t *testing.T) {
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			return []domain.RoutePoint{{Longitude: 10, Latitude: 20, FixTime: "2024-01-01T00:00:00Z"}}, nil
		},
	}
	svc, store, _ := newService(api)

	if _, err := svc.GetPath(context.Background(), usecases.PathQuery{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]domain.LonLat{{10, 20}}, store.Path()); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1704067200000}, store.Timestamps()); diff != "" {
		t.Errorf("timestamps mismatch (-want +got):\n%s", diff)
	}
}

func TestGetPath_DerivedSequencesMatchRoute(t *testing.T) {
	raw := []domain.RoutePoint{
		{Longitude: -2.93, Latitude: 43.26, FixTime: "2024-01-01T00:00:00.000+00:00"},
		{Longitude: -2.94, Latitude: 43.27, FixTime: "2024-01-01T00:01:00.000+00:00"},
		{Longitude: -2.95, Latitude: 43.25, FixTime: "2024-01-01T00:02:30.500+00:00"},
	}
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			return raw, nil
		},
	}
	svc, store, _ := newService(api)

	res, err := svc.GetPath(context.Background(), usecases.PathQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	route, path, ts := store.Route(), store.Path(), store.Timestamps()
	if len(route) != len(path) || len(path) != len(ts) {
		t.Fatalf("length mismatch: route=%d path=%d timestamps=%d", len(route), len(path), len(ts))
	}
	for i, p := range route {
		if path[i] != (domain.LonLat{p.Longitude, p.Latitude}) {
			t.Errorf("path[%d] = %v, want [%v %v]", i, path[i], p.Longitude, p.Latitude)
		}
		want, _ := time.Parse(time.RFC3339, p.FixTime)
		if ts[i] != want.UnixMilli() {
			t.Errorf("timestamps[%d] = %d, want %d", i, ts[i], want.UnixMilli())
		}
	}
	if res.Points != 3 || res.RawPoints != 3 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.Bounds == nil || res.Bounds.MinLat != 43.25 || res.Bounds.MaxLon != -2.93 {
		t.Errorf("unexpected bounds %+v", res.Bounds)
	}
}

func TestGetPath_DefaultWindowBecomesSticky(t *testing.T) {
	type window struct{ from, to string }
	var windows []window
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			windows = append(windows, window{from, to})
			return nil, nil
		},
	}
	svc, store, clock := newService(api)

	if _, err := svc.GetPath(context.Background(), usecases.PathQuery{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := window{"2024-03-09T12:00:00.000Z", "2024-03-11T12:00:00.000Z"}
	if windows[0] != want {
		t.Errorf("expected %+v, got %+v", want, windows[0])
	}
	if *store.From() != want.from || *store.To() != want.to {
		t.Errorf("expected window stored, got %s..%s", *store.From(), *store.To())
	}

	clock.Advance(6 * time.Hour)
	q := usecases.PathQuery{From: "2020-01-01", To: "2020-01-02"}
	if _, err := svc.GetPath(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if windows[1] != want {
		t.Errorf("expected stored window to win, got %+v", windows[1])
	}
	if *store.From() != want.from || *store.To() != want.to {
		t.Error("window changed by later fetch")
	}
}

func TestGetPath_QueryWindow(t *testing.T) {
	var gotFrom, gotTo string
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			gotFrom, gotTo = from, to
			return nil, nil
		},
	}
	svc, store, _ := newService(api)

	q := usecases.PathQuery{From: "2024-01-01T08:00:00+01:00", To: "2024-01-02"}
	if _, err := svc.GetPath(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFrom != "2024-01-01T07:00:00.000Z" || gotTo != "2024-01-02T00:00:00.000Z" {
		t.Errorf("unexpected window %s..%s", gotFrom, gotTo)
	}
	if *store.From() != gotFrom || *store.To() != gotTo {
		t.Error("expected resolved window stored")
	}
}

func TestGetPath_ClearedWindowResolvesAgain(t *testing.T) {
	var gotFrom string
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			gotFrom = from
			return nil, nil
		},
	}
	svc, store, _ := newService(api)

	first := "2024-01-01T00:00:00.000Z"
	store.SetFrom(&first)
	store.SetFrom(nil)

	if _, err := svc.GetPath(context.Background(), usecases.PathQuery{From: "2024-02-01"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFrom != "2024-02-01T00:00:00.000Z" {
		t.Errorf("expected query bound after clearing, got %s", gotFrom)
	}
}

func TestGetPath_EmptyWindowIsFilled(t *testing.T) {
	svc, store, _ := newService(&mockTrackingAPI{})

	empty := ""
	store.SetFrom(&empty)
	store.SetTo(&empty)

	result, err := svc.GetPath(context.Background(), usecases.PathQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.From != "2024-03-09T12:00:00.000Z" || result.To != "2024-03-11T12:00:00.000Z" {
		t.Fatalf("unexpected window %s..%s", result.From, result.To)
	}

	from, to := store.From(), store.To()
	if from == nil || *from != result.From {
		t.Errorf("expected from %s stored, got %v", result.From, from)
	}
	if to == nil || *to != result.To {
		t.Errorf("expected to %s stored, got %v", result.To, to)
	}
}

func TestGetPath_NoDevices(t *testing.T) {
	api := &mockTrackingAPI{
		devicesFn: func(ctx context.Context) ([]domain.Device, error) { return []domain.Device{}, nil },
	}
	svc, store, _ := newService(api)

	_, err := svc.GetPath(context.Background(), usecases.PathQuery{DeviceID: "1"})
	if !errors.Is(err, usecases.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	assertFetchError(t, err, usecases.KindNoDevice, "device")

	for _, c := range api.Calls() {
		if c == "/reports/route" {
			t.Error("route must not be requested without a device")
		}
	}
	if store.From() != nil {
		t.Error("window must not be committed on failure")
	}
}

func TestGetPath_InvalidWindow(t *testing.T) {
	api := &mockTrackingAPI{}
	svc, _, _ := newService(api)

	_, err := svc.GetPath(context.Background(), usecases.PathQuery{To: "next tuesday"})
	assertFetchError(t, err, usecases.KindInvalidWindow, "to")
	if len(api.Calls()) != 0 {
		t.Errorf("expected no backend calls, got %v", api.Calls())
	}
}

func TestGetPath_RouteFailureKeepsPreviousRoute(t *testing.T) {
	fail := false
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			if fail {
				return nil, fmt.Errorf("%w: HTTP 500", ports.ErrUnexpectedStatus)
			}
			return []domain.RoutePoint{{Longitude: 1, Latitude: 2, FixTime: "2024-01-01T00:00:00Z"}}, nil
		},
	}
	svc, store, _ := newService(api)

	if _, err := svc.GetPath(context.Background(), usecases.PathQuery{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fail = true
	_, err := svc.GetPath(context.Background(), usecases.PathQuery{})
	assertFetchError(t, err, usecases.KindStatus, "route")

	if len(store.Route()) != 1 || len(store.Path()) != 1 {
		t.Error("expected previous route kept")
	}
}

func TestGetPath_MalformedFixTime(t *testing.T) {
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			return []domain.RoutePoint{{Longitude: 1, Latitude: 2, FixTime: "soon"}}, nil
		},
	}
	svc, store, _ := newService(api)

	_, err := svc.GetPath(context.Background(), usecases.PathQuery{})
	assertFetchError(t, err, usecases.KindMalformed, "route")
	if len(store.Route()) != 0 {
		t.Error("expected nothing committed")
	}
}

func TestGetPath_NewerRequestWins(t *testing.T) {
	var svc *usecases.TrackingService
	nested := false
	api := &mockTrackingAPI{}
	api.routeFn = func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
		if !nested {
			nested = true
			// A second request starts and finishes while the first is in flight.
			if _, err := svc.GetPath(ctx, usecases.PathQuery{DeviceID: "2"}); err != nil {
				t.Errorf("newer request failed: %v", err)
			}
			return []domain.RoutePoint{{Longitude: 1, Latitude: 1, FixTime: "2024-01-01T00:00:00Z"}}, nil
		}
		return []domain.RoutePoint{
			{Longitude: 2, Latitude: 2, FixTime: "2024-01-01T00:00:00Z"},
			{Longitude: 3, Latitude: 3, FixTime: "2024-01-01T00:01:00Z"},
		}, nil
	}
	svc, store, _ := newService(api)

	_, err := svc.GetPath(context.Background(), usecases.PathQuery{DeviceID: "1"})
	if !errors.Is(err, usecases.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if diff := cmp.Diff([]domain.LonLat{{2, 2}, {3, 3}}, store.Path()); diff != "" {
		t.Errorf("expected newer path kept (-want +got):\n%s", diff)
	}
}

func TestGetPath_UsesRouteCache(t *testing.T) {
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			return []domain.RoutePoint{{Longitude: 5, Latitude: 6, FixTime: "2024-01-01T00:00:00Z"}}, nil
		},
	}
	clock := timeutil.NewMockClock(testNow)
	store := usecases.NewTrackingStore(clock, nil)
	opts := usecases.DefaultTrackingOptions()
	opts.RouteCacheTTL = 30
	svc := usecases.NewTrackingService(api, store, newMockCache(), clock, opts)

	for i := 0; i < 2; i++ {
		if _, err := svc.GetPath(context.Background(), usecases.PathQuery{}); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}

	routeCalls := 0
	for _, c := range api.Calls() {
		if c == "/reports/route" {
			routeCalls++
		}
	}
	if routeCalls != 1 {
		t.Errorf("expected 1 route request, got %d", routeCalls)
	}
	if diff := cmp.Diff([]domain.LonLat{{5, 6}}, store.Path()); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestGetPath_EvictsCorruptCacheEntry(t *testing.T) {
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			return []domain.RoutePoint{{Longitude: 5, Latitude: 6, FixTime: "2024-01-01T00:00:00Z"}}, nil
		},
	}
	clock := timeutil.NewMockClock(testNow)
	store := usecases.NewTrackingStore(clock, nil)
	cache := newMockCache()
	key := "route:1:2024-03-09T12:00:00.000Z:2024-03-11T12:00:00.000Z"
	cache.data[key] = []byte("{not json")

	opts := usecases.DefaultTrackingOptions()
	opts.RouteCacheTTL = 30
	svc := usecases.NewTrackingService(api, store, cache, clock, opts)

	if _, err := svc.GetPath(context.Background(), usecases.PathQuery{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(cache.data[key]); got == "{not json" {
		t.Error("corrupt entry should have been replaced")
	}
	if diff := cmp.Diff([]domain.LonLat{{5, 6}}, store.Path()); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestGetPath_CallSequence(t *testing.T) {
	api := &mockTrackingAPI{}
	svc, _, _ := newService(api)

	if _, err := svc.GetPath(context.Background(), usecases.PathQuery{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"devices", "session", "session", "/geofences", "/reports/route"}
	if diff := cmp.Diff(want, api.Calls()); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectDevice(t *testing.T) {
	devices := []domain.Device{{ID: 0, Name: "ghost"}, {ID: 1}, {ID: 2}}

	tests := []struct {
		raw  string
		want int64
	}{
		{"2", 2},
		{"2abc", 2},
		{" 1", 1},
		{"0", 0}, // id-less entries never match; falls back to devices[0]
		{"", 0},
		{"18446744073709551617", 0}, // overflows int64; must not wrap around to 1
	}
	for _, tt := range tests {
		got, err := usecases.SelectDevice(devices, tt.raw)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.raw, err)
		}
		if got.ID != tt.want {
			t.Errorf("%q: expected id %d, got %d", tt.raw, tt.want, got.ID)
		}
	}

	if _, err := usecases.SelectDevice(nil, "1"); !errors.Is(err, usecases.ErrNoDevice) {
		t.Errorf("expected ErrNoDevice, got %v", err)
	}
}

func TestPrettify_KeepsSingleFix(t *testing.T) {
	in := []domain.RoutePoint{{Longitude: 10, Latitude: 20, FixTime: "2024-01-01T00:00:00Z"}}
	out := usecases.Prettify(in, 1)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestGetPath_SupersededByPathUpdate(t *testing.T) {
	var store *usecases.TrackingStore
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			// A poller's update lands while this fetch is in flight.
			if _, err := store.ApplyPathUpdate(&domain.PathUpdate{
				From: "2024-01-01T00:00:00.000Z", To: "2024-01-02T00:00:00.000Z",
				Route:      []domain.RoutePoint{{Longitude: 7, Latitude: 8, FixTime: "2024-01-01T00:00:00Z"}},
				Path:       []domain.LonLat{{7, 8}},
				Timestamps: []int64{1704067200000},
			}); err != nil {
				t.Errorf("apply update: %v", err)
			}
			return []domain.RoutePoint{{Longitude: 1, Latitude: 1, FixTime: "2024-01-01T00:00:00Z"}}, nil
		},
	}
	var svc *usecases.TrackingService
	svc, store, _ = newService(api)

	_, err := svc.GetPath(context.Background(), usecases.PathQuery{})
	if !errors.Is(err, usecases.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if diff := cmp.Diff([]domain.LonLat{{7, 8}}, store.Path()); diff != "" {
		t.Errorf("expected update kept (-want +got):\n%s", diff)
	}
}

func TestNewPathUpdate_RoundTripsIntoAnotherStore(t *testing.T) {
	api := &mockTrackingAPI{
		routeFn: func(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
			return []domain.RoutePoint{
				{Longitude: 2, Latitude: 2, FixTime: "2024-03-10T00:00:00Z"},
				{Longitude: 3, Latitude: 3, FixTime: "2024-03-10T00:01:00Z"},
			}, nil
		},
	}
	svc, local, _ := newService(api)

	result, err := svc.GetPath(context.Background(), usecases.PathQuery{DeviceID: "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u := usecases.NewPathUpdate(result, local.State(), testNow)
	if u.DeviceID != 2 || !u.At.Equal(testNow) {
		t.Errorf("unexpected update header %+v", u)
	}

	remote := usecases.NewTrackingStore(nil, nil)
	if _, err := remote.ApplyPathUpdate(u); err != nil {
		t.Fatalf("apply: %v", err)
	}
	want, got := local.State(), remote.State()
	if diff := cmp.Diff(want.Path, got.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Timestamps, got.Timestamps); diff != "" {
		t.Errorf("timestamps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.From, got.From); diff != "" {
		t.Errorf("from mismatch (-want +got):\n%s", diff)
	}
}
