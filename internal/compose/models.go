// Package compose groups scheduled legs into trip units: single Direct legs,
// one-way multi-stop milk runs, and round trips out of and back into a facility.
package compose

import (
	"crypto/sha1" //nolint:gosec // identifiers, not security
	"encoding/hex"
	"strings"

	"github.com/lanemap/lanemap/internal/network"
	"github.com/lanemap/lanemap/pkg/clock"
)

// Kind is the trip unit variant.
type Kind string

// Trip unit kinds.
const (
	KindDirect    Kind = "direct"
	KindMilkRun   Kind = "milk_run"
	KindRoundTrip Kind = "round_trip"
)

// TripUnit is one logical trip. Outbound legs leave Focal, inbound legs enter it.
// A Direct unit holds its single leg in Outbound.
type TripUnit struct {
	ID       string           `json:"id"`
	Kind     Kind             `json:"kind"`
	Key      network.GroupKey `json:"key"`
	Focal    string           `json:"focal"`
	Outbound []network.Leg    `json:"outbound,omitempty"`
	Inbound  []network.Leg    `json:"inbound,omitempty"`
}

// Legs returns every leg of the unit, outbound first.
func (u TripUnit) Legs() []network.Leg {
	out := make([]network.Leg, 0, len(u.Outbound)+len(u.Inbound))
	out = append(out, u.Outbound...)
	return append(out, u.Inbound...)
}

// Touches reports whether any leg of the unit starts or ends at facility.
func (u TripUnit) Touches(facility string) bool {
	for _, l := range u.Legs() {
		if l.Origin == facility || l.Destination == facility {
			return true
		}
	}
	return false
}

// Restrict returns the unit without the legs keep rejects. The kind is
// recomputed for what remains; ok is false when nothing remains.
func (u TripUnit) Restrict(keep func(network.Leg) bool) (TripUnit, bool) {
	out := u
	out.Outbound = filterLegs(u.Outbound, keep)
	out.Inbound = filterLegs(u.Inbound, keep)

	switch {
	case len(out.Outbound) == 0 && len(out.Inbound) == 0:
		return TripUnit{}, false
	case u.Kind == KindDirect:
	case len(out.Outbound) > 0 && len(out.Inbound) > 0:
		out.Kind = KindRoundTrip
	default:
		out.Kind = KindMilkRun
	}
	return out, true
}

func filterLegs(legs []network.Leg, keep func(network.Leg) bool) []network.Leg {
	var out []network.Leg
	for _, l := range legs {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

// Role is a stop's position in a trip.
type Role string

// Stop roles.
const (
	RoleStart Role = "start"
	RoleStop  Role = "stop"
	RoleEnd   Role = "end"
)

// Stop is one node of a unit's visiting order with its scheduled times.
// Arrival is invalid for the start node and Departure for the end node;
// intermediate nodes may lack either when the schedule does not define it.
type Stop struct {
	Facility  string
	Role      Role
	Arrival   clock.TimeOfDay
	Departure clock.TimeOfDay
}

func unitID(kind Kind, parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, "\x1f"))) //nolint:gosec // identifiers, not security
	return string(kind) + "_" + hex.EncodeToString(h[:6])
}
