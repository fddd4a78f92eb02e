package domain

// Action is a single-field state transition.
type Action interface {
	// Field names the TrackingState field the action replaces.
	Field() string
	apply(s *TrackingState)
}

// Reduce returns the state that results from applying actions to old, in
// order. old is not modified.
func Reduce(old TrackingState, actions ...Action) TrackingState {
	next := old.Clone()
	for _, a := range actions {
		a.apply(&next)
	}
	return next
}

type SetSession struct{ Session Session }

func (SetSession) Field() string { return FieldSession }
func (a SetSession) apply(s *TrackingState) {
	s.Session = Session(append([]byte(nil), a.Session...))
}

type SetDevices struct{ Devices []Device }

func (SetDevices) Field() string            { return FieldDevices }
func (a SetDevices) apply(s *TrackingState) { s.Devices = cloneOrEmpty(a.Devices) }

type SetTimestamps struct{ Timestamps []int64 }

func (SetTimestamps) Field() string            { return FieldTimestamps }
func (a SetTimestamps) apply(s *TrackingState) { s.Timestamps = cloneOrEmpty(a.Timestamps) }

type SetPath struct{ Path []LonLat }

func (SetPath) Field() string            { return FieldPath }
func (a SetPath) apply(s *TrackingState) { s.Path = cloneOrEmpty(a.Path) }

type SetHeadings struct{ Headings []float64 }

func (SetHeadings) Field() string            { return FieldHeadings }
func (a SetHeadings) apply(s *TrackingState) { s.Headings = cloneOrEmpty(a.Headings) }

type SetRoute struct{ Route []RoutePoint }

func (SetRoute) Field() string            { return FieldRoute }
func (a SetRoute) apply(s *TrackingState) { s.Route = cloneOrEmpty(a.Route) }

type SetGeofences struct{ Geofences []Geofence }

func (SetGeofences) Field() string            { return FieldGeofences }
func (a SetGeofences) apply(s *TrackingState) { s.Geofences = cloneOrEmpty(a.Geofences) }

type SetTerrain struct{ Value bool }

func (SetTerrain) Field() string            { return FieldShowTerrain }
func (a SetTerrain) apply(s *TrackingState) { s.ShowTerrain = a.Value }

type SetSigns struct{ Value bool }

func (SetSigns) Field() string            { return FieldShowSigns }
func (a SetSigns) apply(s *TrackingState) { s.ShowSigns = a.Value }

type SetBuildings struct{ Value bool }

func (SetBuildings) Field() string            { return FieldShowBuildings }
func (a SetBuildings) apply(s *TrackingState) { s.ShowBuildings = a.Value }

// SetFrom replaces the window start. A nil From clears it.
type SetFrom struct{ From *string }

func (SetFrom) Field() string            { return FieldFrom }
func (a SetFrom) apply(s *TrackingState) { s.From = cloneString(a.From) }

// SetTo replaces the window end. A nil To clears it.
type SetTo struct{ To *string }

func (SetTo) Field() string            { return FieldTo }
func (a SetTo) apply(s *TrackingState) { s.To = cloneString(a.To) }

