package compose

import (
	"sort"
	"strings"

	"github.com/lanemap/lanemap/internal/network"
)

// Compose groups legs into trip units. Standalone legs become Direct units.
// Legs sharing a group key form one bucket whose focal facility is the
// endpoint the bucket's legs touch most often (earliest seen on ties); legs
// leaving it are outbound, legs entering it inbound. A bucket with both
// directions is a RoundTrip, otherwise a MilkRun. Bucket legs touching
// neither side of the focal facility are emitted as Direct units that keep
// their group key. Units appear in the order of their first leg.
func Compose(legs []network.Leg) []TripUnit {
	return compose(legs, "")
}

// ComposeFor is Compose restricted to the legs touching focal, with every
// keyed bucket split around focal.
func ComposeFor(focal string, legs []network.Leg) []TripUnit {
	touching := make([]network.Leg, 0, len(legs))
	for _, l := range legs {
		if l.Origin == focal || l.Destination == focal {
			touching = append(touching, l)
		}
	}
	return compose(touching, focal)
}

type bucket struct {
	key   network.GroupKey
	first int
	legs  []network.Leg
}

type placed struct {
	pos  int
	unit TripUnit
}

func compose(legs []network.Leg, focal string) []TripUnit {
	var (
		units   []placed
		buckets []*bucket
		byKey   = make(map[network.GroupKey]*bucket)
	)

	for i, l := range legs {
		key := l.Key()
		if key.IsStandalone() {
			units = append(units, placed{pos: i, unit: direct(l)})
			continue
		}
		b, ok := byKey[key]
		if !ok {
			b = &bucket{key: key, first: i}
			byKey[key] = b
			buckets = append(buckets, b)
		}
		b.legs = append(b.legs, l)
	}

	for _, b := range buckets {
		f := focal
		if f == "" {
			f = focalOf(b.legs)
		}
		unit, strays := split(b.key, f, b.legs)
		units = append(units, placed{pos: b.first, unit: unit})
		for _, l := range strays {
			// strays keep their bucket position so output stays deterministic
			units = append(units, placed{pos: b.first, unit: direct(l)})
		}
	}

	sort.SliceStable(units, func(i, j int) bool { return units[i].pos < units[j].pos })

	out := make([]TripUnit, len(units))
	for i, p := range units {
		out[i] = p.unit
	}
	return out
}

func direct(l network.Leg) TripUnit {
	return TripUnit{
		ID:       unitID(KindDirect, l.Origin, l.Destination, l.DepartureRaw, l.ArrivalRaw, l.TAT, l.Mode, l.Size, l.RouteID, l.RouteSetID),
		Kind:     KindDirect,
		Key:      l.Key(),
		Focal:    l.Origin,
		Outbound: []network.Leg{l},
	}
}

// focalOf picks the endpoint touched by most legs, earliest seen on ties.
func focalOf(legs []network.Leg) string {
	counts := make(map[string]int)
	var order []string
	touch := func(name string) {
		if _, ok := counts[name]; !ok {
			order = append(order, name)
		}
		counts[name]++
	}
	for _, l := range legs {
		touch(l.Origin)
		touch(l.Destination)
	}

	best := ""
	for _, name := range order {
		if best == "" || counts[name] > counts[best] {
			best = name
		}
	}
	return best
}

func split(key network.GroupKey, focal string, legs []network.Leg) (TripUnit, []network.Leg) {
	var outbound, inbound, strays []network.Leg
	for _, l := range legs {
		switch focal {
		case l.Origin:
			outbound = append(outbound, l)
		case l.Destination:
			inbound = append(inbound, l)
		default:
			strays = append(strays, l)
		}
	}

	sort.SliceStable(outbound, func(i, j int) bool { return outbound[i].Arrival.Before(outbound[j].Arrival) })
	sort.SliceStable(inbound, func(i, j int) bool { return inbound[i].Departure.Before(inbound[j].Departure) })

	unit := TripUnit{
		Key:      key,
		Outbound: outbound,
		Inbound:  inbound,
	}
	switch {
	case len(outbound) > 0 && len(inbound) > 0:
		unit.Kind = KindRoundTrip
		unit.Focal = focal
	case len(outbound) > 0:
		unit.Kind = KindMilkRun
		unit.Focal = outbound[0].Origin
	default:
		unit.Kind = KindMilkRun
		unit.Focal = inbound[0].Destination
	}
	unit.ID = unitID(unit.Kind, key.RouteID, key.RouteSetID, unit.Focal, legNames(unit.Legs()))
	return unit, strays
}

func legNames(legs []network.Leg) string {
	var b strings.Builder
	for _, l := range legs {
		b.WriteString(l.Origin)
		b.WriteByte('>')
		b.WriteString(l.Destination)
		b.WriteByte(';')
	}
	return b.String()
}
