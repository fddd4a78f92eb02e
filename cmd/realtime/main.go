// Command realtime keeps a device's tracked path fresh by re-running the path
// fetch on a fixed interval and publishing each committed path over NATS.
// The API process applies those updates to its own store.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/samirrijal/fleetview/internal/adapters/nats"
	"github.com/samirrijal/fleetview/internal/adapters/traccar"
	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/core/usecases"
	"github.com/samirrijal/fleetview/internal/pkg/config"
	"github.com/samirrijal/fleetview/internal/pkg/logging"
	"github.com/samirrijal/fleetview/internal/pkg/timeutil"
)

func main() {
	device := flag.String("device", "", "device id to follow; default first device")
	interval := flag.Duration("interval", 30*time.Second, "poll interval")
	flag.Parse()

	cfg, err := config.Load("fleetview-realtime")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if !cfg.NATS.Enabled {
		log.Fatal("realtime poller publishes over NATS: set nats.enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := traccar.New(traccar.Options{
		BaseURL:  cfg.Backend.BaseURL,
		User:     cfg.Backend.User,
		Password: cfg.Backend.Password,
		Token:    cfg.Backend.Token,
		Timeout:  cfg.Backend.RequestTimeout(),
	}, nil)
	if err != nil {
		log.Fatalf("backend client: %v", err)
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	// The local store is scratch space; only path updates leave the process.
	clock := timeutil.RealClock{}
	store := usecases.NewTrackingStore(clock, nil)
	svc := usecases.NewTrackingService(api, store, nil, clock, usecases.TrackingOptions{
		DuplicateSessionFetch: cfg.Backend.DuplicateSessionFetch,
		RouteTolerance:        cfg.Backend.RouteTolerance,
		DefaultWindow:         time.Duration(cfg.Backend.WindowHours) * time.Hour,
	})

	slog.Info("realtime poller starting", "interval", interval.String(), "device", *device)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	p := poller{svc: svc, store: store, pub: pub, clock: clock, device: *device, interval: *interval}
	p.poll(ctx)
	for {
		select {
		case <-ticker.C:
			p.poll(ctx)
		case <-ctx.Done():
			slog.Info("shutting down realtime poller")
			return
		}
	}
}

type pathPublisher interface {
	PublishPathUpdate(ctx context.Context, update *domain.PathUpdate) error
}

type poller struct {
	svc      *usecases.TrackingService
	store    *usecases.TrackingStore
	pub      pathPublisher
	clock    timeutil.Clock
	device   string
	interval time.Duration
}

// poll runs one path fetch bounded by the interval and publishes the result.
// The window is cleared first so each run covers the period around the
// current time instead of sticking to the first resolved window.
// It reports whether an update was published.
func (p poller) poll(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	p.store.Dispatch(domain.SetFrom{}, domain.SetTo{})

	result, err := p.svc.GetPath(ctx, usecases.PathQuery{DeviceID: p.device})
	if err != nil {
		var fe *usecases.FetchError
		if errors.As(err, &fe) {
			slog.Warn("poll failed", "step", fe.Step, "kind", string(fe.Kind), "error", fe.Err)
			return false
		}
		slog.Warn("poll failed", "error", err)
		return false
	}

	update := usecases.NewPathUpdate(result, p.store.State(), p.clock.Now())
	if err := p.pub.PublishPathUpdate(ctx, update); err != nil {
		slog.Warn("publish path update failed", "device_id", result.DeviceID, "error", err)
		return false
	}
	slog.Info("path refreshed", "device_id", result.DeviceID, "points", result.Points, "from", result.From, "to", result.To)
	return true
}
