package compose

import (
	"github.com/lanemap/lanemap/internal/network"
	"github.com/lanemap/lanemap/pkg/clock"
)

// Stops returns the unit's visiting order.
//
//   - Direct: origin, destination.
//   - Outbound MilkRun: focal, then each destination in arrival order.
//   - Inbound MilkRun: each origin in departure order, then focal.
//   - RoundTrip: focal, each outbound destination in arrival order, any
//     inbound origin not already visited, then focal again.
//
// A facility is listed once per unit apart from a RoundTrip's closing focal node.
func Stops(u TripUnit) []Stop {
	switch {
	case u.Kind == KindDirect && len(u.Outbound) > 0:
		l := u.Outbound[0]
		return []Stop{
			{Facility: l.Origin, Role: RoleStart, Departure: l.Departure},
			{Facility: l.Destination, Role: RoleEnd, Arrival: l.Arrival},
		}
	case u.Kind == KindRoundTrip:
		return roundTripStops(u)
	case len(u.Outbound) > 0:
		return outboundStops(u)
	case len(u.Inbound) > 0:
		return inboundStops(u)
	default:
		return nil
	}
}

func outboundStops(u TripUnit) []Stop {
	stops := []Stop{{Facility: u.Focal, Role: RoleStart, Departure: u.Outbound[0].Departure}}
	seen := map[string]bool{u.Focal: true}
	for _, l := range u.Outbound {
		if seen[l.Destination] {
			continue
		}
		seen[l.Destination] = true
		stops = append(stops, Stop{Facility: l.Destination, Role: RoleStop, Arrival: l.Arrival})
	}
	return closeRoles(stops)
}

func inboundStops(u TripUnit) []Stop {
	var stops []Stop
	seen := map[string]bool{u.Focal: true}
	for _, l := range u.Inbound {
		if seen[l.Origin] {
			continue
		}
		seen[l.Origin] = true
		stops = append(stops, Stop{Facility: l.Origin, Role: RoleStop, Departure: l.Departure})
	}
	last := u.Inbound[len(u.Inbound)-1]
	stops = append(stops, Stop{Facility: u.Focal, Role: RoleEnd, Arrival: last.Arrival})
	return closeRoles(stops)
}

func roundTripStops(u TripUnit) []Stop {
	stops := []Stop{{Facility: u.Focal, Role: RoleStart, Departure: u.Outbound[0].Departure}}
	seen := map[string]bool{u.Focal: true}

	for _, l := range u.Outbound {
		if seen[l.Destination] {
			continue
		}
		seen[l.Destination] = true
		stop := Stop{Facility: l.Destination, Role: RoleStop, Arrival: l.Arrival}
		if back, ok := firstInboundFrom(u.Inbound, l.Destination); ok {
			stop.Departure = back.Departure
		}
		stops = append(stops, stop)
	}
	for _, l := range u.Inbound {
		if seen[l.Origin] {
			continue
		}
		seen[l.Origin] = true
		stops = append(stops, Stop{Facility: l.Origin, Role: RoleStop, Departure: l.Departure})
	}

	// Close the loop with the return leg out of the last stop, falling back
	// to the latest-departing inbound leg.
	closing := u.Inbound[len(u.Inbound)-1].Arrival
	if back, ok := firstInboundFrom(u.Inbound, stops[len(stops)-1].Facility); ok {
		closing = back.Arrival
	}
	return append(stops, Stop{Facility: u.Focal, Role: RoleEnd, Arrival: closing})
}

// firstInboundFrom finds the first inbound leg leaving origin. A stop visited
// by more than one return leg resolves to the earliest-departing one.
func firstInboundFrom(inbound []network.Leg, origin string) (network.Leg, bool) {
	for _, l := range inbound {
		if l.Origin == origin {
			return l, true
		}
	}
	return network.Leg{}, false
}

// closeRoles marks the first node start and the last node end.
func closeRoles(stops []Stop) []Stop {
	if len(stops) == 0 {
		return stops
	}
	stops[0].Role = RoleStart
	stops[0].Arrival = clock.TimeOfDay{}
	last := len(stops) - 1
	if last > 0 {
		stops[last].Role = RoleEnd
		stops[last].Departure = clock.TimeOfDay{}
	}
	return stops
}
