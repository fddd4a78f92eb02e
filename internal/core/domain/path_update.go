package domain

import "time"

// PathUpdate is a committed path handed from a background poller to the
// process that serves clients.
type PathUpdate struct {
	DeviceID   int64        `json:"device_id"`
	From       string       `json:"from"`
	To         string       `json:"to"`
	Route      []RoutePoint `json:"route"`
	Path       []LonLat     `json:"path"`
	Timestamps []int64      `json:"timestamps"`
	At         time.Time    `json:"at"`
}

// Actions returns the single transition that installs the update, window
// included.
func (u PathUpdate) Actions() []Action {
	from, to := u.From, u.To
	return []Action{
		SetFrom{From: &from},
		SetTo{To: &to},
		SetRoute{Route: u.Route},
		SetPath{Path: u.Path},
		SetTimestamps{Timestamps: u.Timestamps},
	}
}
