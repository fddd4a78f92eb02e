package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/core/ports"
	"github.com/samirrijal/fleetview/internal/pkg/metrics"
	"github.com/samirrijal/fleetview/internal/pkg/timeutil"
)

// TrackingStore owns one TrackingState. Every write goes through
// domain.Reduce; every read returns a copy.
type TrackingStore struct {
	mu      sync.RWMutex
	state   domain.TrackingState
	version uint64
	pathSeq uint64

	clock     timeutil.Clock
	publisher ports.EventPublisher
}

// NewTrackingStore creates a store holding the default state. publisher may
// be nil, in which case changes are not broadcast.
func NewTrackingStore(clock timeutil.Clock, publisher ports.EventPublisher) *TrackingStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TrackingStore{
		state:     domain.NewTrackingState(),
		clock:     clock,
		publisher: publisher,
	}
}

// Dispatch applies actions as one transition and returns the change record.
func (s *TrackingStore) Dispatch(actions ...domain.Action) domain.StateChange {
	s.mu.Lock()
	change := s.applyLocked(actions)
	s.mu.Unlock()

	s.notify(change)
	return change
}

func (s *TrackingStore) applyLocked(actions []domain.Action) domain.StateChange {
	s.state = domain.Reduce(s.state, actions...)
	s.version++

	fields := make([]string, 0, len(actions))
	for _, a := range actions {
		if !slices.Contains(fields, a.Field()) {
			fields = append(fields, a.Field())
		}
		metrics.StateTransitions.WithLabelValues(a.Field()).Inc()
	}
	return domain.StateChange{Fields: fields, Version: s.version, At: s.clock.Now()}
}

func (s *TrackingStore) notify(change domain.StateChange) {
	if s.publisher == nil || len(change.Fields) == 0 {
		return
	}
	if err := s.publisher.PublishStateChange(context.Background(), &change); err != nil {
		slog.Warn("publish state change failed", "version", change.Version, "error", err)
	}
}

// beginPath hands out the token a path fetch must present to commit.
func (s *TrackingStore) beginPath() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pathSeq++
	return s.pathSeq
}

// commitPath writes a fetched route unless a newer path fetch has started.
// The window bounds are only written when still unset (nil or empty) at
// commit time.
func (s *TrackingStore) commitPath(token uint64, from, to string, route []domain.RoutePoint, path []domain.LonLat, timestamps []int64) (domain.StateChange, bool) {
	s.mu.Lock()
	if token != s.pathSeq {
		s.mu.Unlock()
		return domain.StateChange{}, false
	}

	var actions []domain.Action
	if unsetBound(s.state.From) {
		actions = append(actions, domain.SetFrom{From: &from})
	}
	if unsetBound(s.state.To) {
		actions = append(actions, domain.SetTo{To: &to})
	}
	actions = append(actions,
		domain.SetRoute{Route: route},
		domain.SetPath{Path: path},
		domain.SetTimestamps{Timestamps: timestamps},
	)
	change := s.applyLocked(actions)
	s.mu.Unlock()

	s.notify(change)
	return change, true
}

// ApplyPathUpdate installs a path fetched by another process. Any path fetch
// still in flight here is superseded by it.
func (s *TrackingStore) ApplyPathUpdate(u *domain.PathUpdate) (domain.StateChange, error) {
	if len(u.Path) != len(u.Route) || len(u.Timestamps) != len(u.Route) {
		return domain.StateChange{}, fmt.Errorf("path update for device %d: %d route points, %d path points, %d timestamps",
			u.DeviceID, len(u.Route), len(u.Path), len(u.Timestamps))
	}

	s.mu.Lock()
	s.pathSeq++
	change := s.applyLocked(u.Actions())
	s.mu.Unlock()

	s.notify(change)
	return change, nil
}

func unsetBound(b *string) bool {
	return b == nil || *b == ""
}

// Version counts transitions since the store was created.
func (s *TrackingStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// State returns a copy of the whole record.
func (s *TrackingStore) State() domain.TrackingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// read runs fn under the read lock.
func (s *TrackingStore) read(fn func(st *domain.TrackingState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.state)
}

// --- Accessors ---

func (s *TrackingStore) Session() (out domain.Session) {
	s.read(func(st *domain.TrackingState) { out = domain.Session(slices.Clone([]byte(st.Session))) })
	return out
}

func (s *TrackingStore) Devices() (out []domain.Device) {
	s.read(func(st *domain.TrackingState) { out = slices.Clone(st.Devices) })
	return out
}

func (s *TrackingStore) Timestamps() (out []int64) {
	s.read(func(st *domain.TrackingState) { out = slices.Clone(st.Timestamps) })
	return out
}

func (s *TrackingStore) Path() (out []domain.LonLat) {
	s.read(func(st *domain.TrackingState) { out = slices.Clone(st.Path) })
	return out
}

func (s *TrackingStore) Headings() (out []float64) {
	s.read(func(st *domain.TrackingState) { out = slices.Clone(st.Headings) })
	return out
}

func (s *TrackingStore) Route() (out []domain.RoutePoint) {
	s.read(func(st *domain.TrackingState) { out = slices.Clone(st.Route) })
	return out
}

func (s *TrackingStore) Geofences() (out []domain.Geofence) {
	s.read(func(st *domain.TrackingState) { out = slices.Clone(st.Geofences) })
	return out
}

func (s *TrackingStore) ShowTerrain() (out bool) {
	s.read(func(st *domain.TrackingState) { out = st.ShowTerrain })
	return out
}

func (s *TrackingStore) ShowSigns() (out bool) {
	s.read(func(st *domain.TrackingState) { out = st.ShowSigns })
	return out
}

func (s *TrackingStore) ShowBuildings() (out bool) {
	s.read(func(st *domain.TrackingState) { out = st.ShowBuildings })
	return out
}

// From returns the window start, or nil when unset.
func (s *TrackingStore) From() (out *string) {
	s.read(func(st *domain.TrackingState) {
		if st.From != nil {
			v := *st.From
			out = &v
		}
	})
	return out
}

// To returns the window end, or nil when unset.
func (s *TrackingStore) To() (out *string) {
	s.read(func(st *domain.TrackingState) {
		if st.To != nil {
			v := *st.To
			out = &v
		}
	})
	return out
}

// --- Setters ---

func (s *TrackingStore) SetSession(v domain.Session)      { s.Dispatch(domain.SetSession{Session: v}) }
func (s *TrackingStore) SetDevices(v []domain.Device)     { s.Dispatch(domain.SetDevices{Devices: v}) }
func (s *TrackingStore) SetTimestamps(v []int64)          { s.Dispatch(domain.SetTimestamps{Timestamps: v}) }
func (s *TrackingStore) SetPath(v []domain.LonLat)        { s.Dispatch(domain.SetPath{Path: v}) }
func (s *TrackingStore) SetHeadings(v []float64)          { s.Dispatch(domain.SetHeadings{Headings: v}) }
func (s *TrackingStore) SetRoute(v []domain.RoutePoint)   { s.Dispatch(domain.SetRoute{Route: v}) }
func (s *TrackingStore) SetGeofences(v []domain.Geofence) { s.Dispatch(domain.SetGeofences{Geofences: v}) }
func (s *TrackingStore) SetTerrain(v bool)                { s.Dispatch(domain.SetTerrain{Value: v}) }
func (s *TrackingStore) SetSigns(v bool)                  { s.Dispatch(domain.SetSigns{Value: v}) }
func (s *TrackingStore) SetBuildings(v bool)              { s.Dispatch(domain.SetBuildings{Value: v}) }
func (s *TrackingStore) SetFrom(v *string)                { s.Dispatch(domain.SetFrom{From: v}) }
func (s *TrackingStore) SetTo(v *string)                  { s.Dispatch(domain.SetTo{To: v}) }
