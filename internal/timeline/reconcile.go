// Package timeline turns a trip unit and its resolved path into a stop
// manifest: scheduled times per stop, dwell at intermediate stops and the
// slack left on each road hop once driving time is accounted for.
package timeline

import (
	"math"

	"github.com/lanemap/lanemap/internal/compose"
	"github.com/lanemap/lanemap/internal/routing"
	"github.com/lanemap/lanemap/pkg/clock"
)

// Entry is one stop of a manifest.
type Entry struct {
	Facility  string          `json:"facility"`
	Role      compose.Role    `json:"role"`
	Arrival   clock.TimeOfDay `json:"arrival"`
	Departure clock.TimeOfDay `json:"departure"`
	// DwellMinutes is zero for the start and end stops and for stops missing either time.
	DwellMinutes int `json:"dwellMinutes"`
	// Next is nil only on the end stop.
	Next *Hop `json:"next,omitempty"`
}

// Hop describes the road to the following stop. Road figures are nil when
// no resolved path covers the hop.
type Hop struct {
	To               string   `json:"to"`
	ScheduledMinutes *int     `json:"scheduledMinutes"`
	DistanceMeters   *float64 `json:"distanceMeters"`
	DurationSeconds  *float64 `json:"durationSeconds"`
	RoadSlackMinutes *int     `json:"roadSlackMinutes"`
}

// Manifest is the reconciled timeline of a trip unit.
type Manifest struct {
	UnitID  string       `json:"unitId"`
	Kind    compose.Kind `json:"kind"`
	Entries []Entry      `json:"entries"`
	// Resolved reports whether a path was available.
	Resolved         bool    `json:"resolved"`
	DwellMinutes     int     `json:"dwellMinutes"`
	RoadSlackMinutes int     `json:"roadSlackMinutes"`
	TotalBufferHours float64 `json:"totalBufferHours"`
	// ScheduledMinutes spans the start departure to the end arrival; nil when either is unknown.
	ScheduledMinutes *int `json:"scheduledMinutes"`
}

// Reconcile builds the manifest for u. path may be nil, in which case the
// manifest carries schedule facts only.
func Reconcile(u compose.TripUnit, path *routing.ResolvedPath) Manifest {
	stops := compose.Stops(u)
	m := Manifest{
		UnitID:   u.ID,
		Kind:     u.Kind,
		Entries:  make([]Entry, len(stops)),
		Resolved: path != nil,
	}

	cursor := 0
	for i, s := range stops {
		e := Entry{
			Facility:  s.Facility,
			Role:      s.Role,
			Arrival:   s.Arrival,
			Departure: s.Departure,
		}
		if s.Role == compose.RoleStop {
			if d, ok := s.Arrival.Until(s.Departure); ok {
				e.DwellMinutes = d
			}
		}
		m.DwellMinutes += e.DwellMinutes

		if i < len(stops)-1 {
			next := stops[i+1]
			hop := &Hop{To: next.Facility}

			leave := s.Departure
			if !leave.IsValid() {
				leave = s.Arrival
			}
			gap, gapOK := leave.Until(next.Arrival)
			if gapOK {
				hop.ScheduledMinutes = &gap
			}

			if h, at, ok := path.HopFrom(cursor, s.Facility, next.Facility); ok {
				cursor = at + 1
				dist, dur := h.DistanceMeters, h.DurationSeconds
				hop.DistanceMeters = &dist
				hop.DurationSeconds = &dur
				if gapOK {
					slack := max(0, int(math.Round(float64(gap)-dur/60)))
					hop.RoadSlackMinutes = &slack
					m.RoadSlackMinutes += slack
				}
			}
			e.Next = hop
		}

		m.Entries[i] = e
	}

	m.TotalBufferHours = float64(m.DwellMinutes+m.RoadSlackMinutes) / 60

	if len(stops) > 0 {
		if total, ok := stops[0].Departure.Until(stops[len(stops)-1].Arrival); ok {
			m.ScheduledMinutes = &total
		}
	}
	return m
}
