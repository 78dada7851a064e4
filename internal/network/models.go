// Package network turns raw facility and leg rows into the deduplicated
// linehaul network: facilities with coordinates and type, scheduled legs
// between them, and per-facility degree counts.
package network

import (
	"strconv"
	"strings"

	"github.com/lanemap/lanemap/pkg/clock"
	"github.com/lanemap/lanemap/pkg/polyline"
)

// NoRoute is the route id / route-set id used when a leg belongs to no run.
const NoRoute = "none"

// Defaults applied to blank leg attributes.
const (
	UnknownSize     = "Unknown"
	UnknownMode     = "UNKNOWN"
	NoAddress       = "Address not available"
	ModeFTL         = "FTL"
	ModeCarting     = "CARTING"
	ModeLTL         = "LTL"
	facilityTypeSep = "_"
)

// FacilityType is derived from the last underscore token of a facility name.
type FacilityType string

// Facility types.
const (
	TypeGateway FacilityType = "Gateway"
	TypeHub     FacilityType = "Hub"
	TypeIPC     FacilityType = "IPC"
	TypeOther   FacilityType = "Other"
)

// ClassifyFacility returns the facility type encoded in name's suffix.
func ClassifyFacility(name string) FacilityType {
	parts := strings.Split(name, facilityTypeSep)
	switch strings.ToUpper(strings.TrimSpace(parts[len(parts)-1])) {
	case "GW":
		return TypeGateway
	case "H", "HUB":
		return TypeHub
	case "I":
		return TypeIPC
	default:
		return TypeOther
	}
}

// Facility is a physical location in the network.
type Facility struct {
	Name    string       `json:"name"`
	Lat     float64      `json:"lat"`
	Lon     float64      `json:"lng"`
	Address string       `json:"address"`
	Type    FacilityType `json:"type"`
}

// Coordinate returns the facility position.
func (f Facility) Coordinate() polyline.Coordinate {
	return polyline.Coordinate{Lat: f.Lat, Lon: f.Lon}
}

// GroupKey identifies the operational run a leg belongs to.
type GroupKey struct {
	RouteID    string `json:"routeId"`
	RouteSetID string `json:"routeSetId"`
}

// IsStandalone reports whether the key is the "no run" sentinel.
func (k GroupKey) IsStandalone() bool {
	return k.RouteID == NoRoute && k.RouteSetID == NoRoute
}

// String formats the key as routeID/routeSetID.
func (k GroupKey) String() string {
	return k.RouteID + "/" + k.RouteSetID
}

// Leg is one scheduled directional movement between two facilities.
type Leg struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Mode        string          `json:"mode"`
	Size        string          `json:"size"`
	Departure   clock.TimeOfDay `json:"departure"`
	Arrival     clock.TimeOfDay `json:"arrival"`
	TAT         string          `json:"tat"`
	RouteID     string          `json:"routeId"`
	RouteSetID  string          `json:"routeSetId"`

	// Raw clock strings as ingested, kept for identity and display of
	// values that failed to parse.
	DepartureRaw string `json:"-"`
	ArrivalRaw   string `json:"-"`
}

// Key returns the leg's group key.
func (l Leg) Key() GroupKey {
	return GroupKey{RouteID: l.RouteID, RouteSetID: l.RouteSetID}
}

// TATHours parses the declared turn-around time.
func (l Leg) TATHours() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(l.TAT), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// identity is the deduplication tuple of a leg.
func (l Leg) identity() string {
	return strings.Join([]string{
		l.Origin, l.Destination, l.DepartureRaw, l.ArrivalRaw, l.TAT,
		l.Mode, l.Size, l.RouteID, l.RouteSetID,
	}, "|")
}

// Degree counts legs leaving (Out) and entering (In) a facility.
type Degree struct {
	In  int `json:"in"`
	Out int `json:"out"`
}

// Active reports whether any leg touches the facility.
func (d Degree) Active() bool {
	return d.In > 0 || d.Out > 0
}
