package domain

import "encoding/json"

// Device is a tracked unit as reported by the backend's devices endpoint.
type Device struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name,omitempty"`
	UniqueID   string         `json:"uniqueId,omitempty"`
	Status     string         `json:"status,omitempty"`
	Disabled   bool           `json:"disabled,omitempty"`
	LastUpdate string         `json:"lastUpdate,omitempty"`
	PositionID int64          `json:"positionId,omitempty"`
	GroupID    int64          `json:"groupId,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Model      string         `json:"model,omitempty"`
	Contact    string         `json:"contact,omitempty"`
	Category   string         `json:"category,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Geofence is a named geographic zone. Area is kept in the backend's
// WKT-like notation and is not interpreted here.
type Geofence struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Area        string         `json:"area,omitempty"`
	CalendarID  int64          `json:"calendarId,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// RoutePoint is one recorded position fix from the route report.
type RoutePoint struct {
	ID         int64          `json:"id,omitempty"`
	DeviceID   int64          `json:"deviceId,omitempty"`
	Protocol   string         `json:"protocol,omitempty"`
	ServerTime string         `json:"serverTime,omitempty"`
	DeviceTime string         `json:"deviceTime,omitempty"`
	FixTime    string         `json:"fixTime"`
	Outdated   bool           `json:"outdated,omitempty"`
	Valid      bool           `json:"valid,omitempty"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Altitude   float64        `json:"altitude,omitempty"`
	Speed      float64        `json:"speed,omitempty"` // knots
	Course     float64        `json:"course,omitempty"`
	Address    string         `json:"address,omitempty"`
	Accuracy   float64        `json:"accuracy,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Session is the backend's opaque user/session object. A nil Session means
// no session has been fetched yet.
type Session json.RawMessage

// MarshalJSON emits the raw object, or null when absent.
func (s Session) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return []byte(s), nil
}

// UnmarshalJSON keeps a copy of the raw object. JSON null leaves it absent.
func (s *Session) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	*s = append((*s)[:0], data...)
	return nil
}
