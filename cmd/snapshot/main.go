// Command snapshot runs one path fetch against the tracking backend and
// prints the resulting state as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/samirrijal/fleetview/internal/adapters/traccar"
	"github.com/samirrijal/fleetview/internal/core/usecases"
	"github.com/samirrijal/fleetview/internal/pkg/config"
	"github.com/samirrijal/fleetview/internal/pkg/logging"
	"github.com/samirrijal/fleetview/internal/pkg/timeutil"
)

func main() {
	from := flag.String("from", "", "window start (RFC 3339 or YYYY-MM-DD); default now-window")
	to := flag.String("to", "", "window end (RFC 3339 or YYYY-MM-DD); default now+window")
	device := flag.String("device", "", "device id; default first device")
	summary := flag.Bool("summary", false, "print the path summary instead of the full state")
	flag.Parse()

	cfg, err := config.Load("fleetview-snapshot")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Logs go to stderr so stdout stays valid JSON.
	logger := logging.New(os.Stderr, cfg.Log.Level, "text")

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

	clock := timeutil.RealClock{}
	store := usecases.NewTrackingStore(clock, nil)
	svc := usecases.NewTrackingService(api, store, nil, clock, usecases.TrackingOptions{
		DuplicateSessionFetch: cfg.Backend.DuplicateSessionFetch,
		RouteTolerance:        cfg.Backend.RouteTolerance,
		DefaultWindow:         time.Duration(cfg.Backend.WindowHours) * time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*cfg.Backend.RequestTimeout())
	defer cancel()

	result, err := svc.GetPath(ctx, usecases.PathQuery{From: *from, To: *to, DeviceID: *device})
	if err != nil {
		logger.Error("path fetch failed", "error", err)
		os.Exit(1)
	}
	logger.Info("path fetched", "device_id", result.DeviceID, "points", result.Points, "raw_points", result.RawPoints)

	var out any = store.State()
	if *summary {
		out = result
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
