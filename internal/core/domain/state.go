package domain

import (
	"slices"
	"time"
)

// Field names used by accessors, setters and change notifications.
const (
	FieldSession       = "session"
	FieldDevices       = "devices"
	FieldTimestamps    = "timestamps"
	FieldPath          = "path"
	FieldHeadings      = "headings"
	FieldRoute         = "route"
	FieldGeofences     = "geofences"
	FieldShowTerrain   = "showTerrain"
	FieldShowSigns     = "showSigns"
	FieldShowBuildings = "showBuildings"
	FieldFrom          = "from"
	FieldTo            = "to"
)

// Fields lists every TrackingState field in declaration order.
var Fields = []string{
	FieldSession, FieldDevices, FieldTimestamps, FieldPath, FieldHeadings, FieldRoute,
	FieldGeofences, FieldShowTerrain, FieldShowSigns, FieldShowBuildings, FieldFrom, FieldTo,
}

// TrackingState is the whole client-side tracking record.
type TrackingState struct {
	Session       Session      `json:"session"`
	Devices       []Device     `json:"devices"`
	Timestamps    []int64      `json:"timestamps"`
	Path          []LonLat     `json:"path"`
	Headings      []float64    `json:"headings"`
	Route         []RoutePoint `json:"route"`
	Geofences     []Geofence   `json:"geofences"`
	ShowTerrain   bool         `json:"showTerrain"`
	ShowSigns     bool         `json:"showSigns"`
	ShowBuildings bool         `json:"showBuildings"`
	From          *string      `json:"from"`
	To            *string      `json:"to"`
}

// NewTrackingState returns the start-of-session defaults. Sequences are
// empty, not nil, so they encode as [] rather than null.
func NewTrackingState() TrackingState {
	return TrackingState{
		Devices:    []Device{},
		Timestamps: []int64{},
		Path:       []LonLat{},
		Headings:   []float64{},
		Route:      []RoutePoint{},
		Geofences:  []Geofence{},
	}
}

// Clone returns a deep enough copy that no slice or pointer is shared with s.
// Attribute maps inside devices and points are shared; they are never mutated.
func (s TrackingState) Clone() TrackingState {
	out := s
	out.Session = Session(slices.Clone([]byte(s.Session)))
	out.Devices = cloneOrEmpty(s.Devices)
	out.Timestamps = cloneOrEmpty(s.Timestamps)
	out.Path = cloneOrEmpty(s.Path)
	out.Headings = cloneOrEmpty(s.Headings)
	out.Route = cloneOrEmpty(s.Route)
	out.Geofences = cloneOrEmpty(s.Geofences)
	out.From = cloneString(s.From)
	out.To = cloneString(s.To)
	return out
}

// StateChange is the notification emitted after a transition.
type StateChange struct {
	Fields  []string  `json:"fields"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

func cloneOrEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return slices.Clone(in)
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
