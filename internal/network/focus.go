package network

import (
	"math"
	"sort"
	"strings"

	"github.com/lanemap/lanemap/pkg/clock"
	"github.com/lanemap/lanemap/pkg/polyline"
)

// LongHaulKm is the straight-line distance above which a leg counts as long haul.
const LongHaulKm = 500

// Category narrows a focus leg list.
type Category string

// Focus categories.
const (
	CategoryAll     Category = "ALL"
	CategoryFTL     Category = "FTL"
	CategoryCarting Category = "CARTING"
	CategoryLong    Category = "LONG"
)

// SortKey orders a focus leg list.
type SortKey string

// Sort keys.
const (
	SortByDistance SortKey = "dist"
	SortBySize     SortKey = "size"
)

// FocusFilter controls which legs FocusStats lists and in what order.
// The zero value lists everything sorted by distance, longest first.
type FocusFilter struct {
	HideOutbound bool
	HideInbound  bool
	// Modes, when non-nil, keeps only legs whose mode maps to true.
	Modes    map[string]bool
	Category Category
	SortBy   SortKey
	Asc      bool
}

// LegView is a leg annotated with its straight-line length.
type LegView struct {
	Leg
	DistanceKm int `json:"distanceKm"`
}

// ShiftCounts splits a shift's legs by direction and by FTL vs carting.
type ShiftCounts struct {
	Out        int `json:"out"`
	In         int `json:"in"`
	OutFTL     int `json:"outFtl"`
	OutCarting int `json:"outCarting"`
	InFTL      int `json:"inFtl"`
	InCarting  int `json:"inCarting"`
}

// Focus describes the traffic at one facility.
type Focus struct {
	Facility    string                      `json:"facility"`
	Outbound    []LegView                   `json:"outbound"`
	Inbound     []LegView                   `json:"inbound"`
	RawOutbound int                         `json:"rawOutbound"`
	RawInbound  int                         `json:"rawInbound"`
	Shifts      map[clock.Shift]ShiftCounts `json:"shifts"`
}

// FocusStats collects the legs leaving and entering focal. Raw counts and
// shift counts ignore the filter; the leg lists honour it.
func FocusStats(focal string, legs []Leg, facilities *Facilities, filter FocusFilter) Focus {
	var outbound, inbound []LegView
	for _, l := range legs {
		if l.Origin == focal {
			outbound = append(outbound, LegView{Leg: l, DistanceKm: straightLineKm(facilities, l)})
		}
		if l.Destination == focal {
			inbound = append(inbound, LegView{Leg: l, DistanceKm: straightLineKm(facilities, l)})
		}
	}

	focus := Focus{
		Facility:    focal,
		RawOutbound: len(outbound),
		RawInbound:  len(inbound),
		Shifts:      make(map[clock.Shift]ShiftCounts, len(clock.Shifts)),
	}
	for _, s := range clock.Shifts {
		focus.Shifts[s] = ShiftCounts{}
	}

	for _, v := range outbound {
		s := clock.ShiftOf(v.Departure)
		c, ok := focus.Shifts[s]
		if !ok {
			continue
		}
		c.Out++
		if v.Mode == ModeFTL {
			c.OutFTL++
		} else {
			c.OutCarting++
		}
		focus.Shifts[s] = c
	}
	for _, v := range inbound {
		s := clock.ShiftOf(v.Arrival)
		c, ok := focus.Shifts[s]
		if !ok {
			continue
		}
		c.In++
		if v.Mode == ModeFTL {
			c.InFTL++
		} else {
			c.InCarting++
		}
		focus.Shifts[s] = c
	}

	if !filter.HideOutbound {
		focus.Outbound = filter.apply(outbound)
	}
	if !filter.HideInbound {
		focus.Inbound = filter.apply(inbound)
	}
	return focus
}

func (f FocusFilter) apply(list []LegView) []LegView {
	out := make([]LegView, 0, len(list))
	for _, v := range list {
		if f.Modes != nil && !f.Modes[v.Mode] {
			continue
		}
		if !f.Category.matches(v) {
			continue
		}
		out = append(out, v)
	}

	less := func(a, b LegView) bool { return a.DistanceKm < b.DistanceKm }
	if f.SortBy == SortBySize {
		less = func(a, b LegView) bool { return strings.ToLower(a.Size) < strings.ToLower(b.Size) }
	}
	sort.SliceStable(out, func(i, j int) bool {
		if f.Asc {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}

func (c Category) matches(v LegView) bool {
	switch c {
	case CategoryFTL:
		return v.Mode == ModeFTL
	case CategoryCarting:
		return v.Mode == ModeCarting || v.Mode == ModeLTL
	case CategoryLong:
		return v.DistanceKm > LongHaulKm
	default:
		return true
	}
}

func straightLineKm(facilities *Facilities, l Leg) int {
	o, okO := facilities.Lookup(l.Origin)
	d, okD := facilities.Lookup(l.Destination)
	if !okO || !okD {
		return 0
	}
	return int(math.Round(polyline.Distance(o.Coordinate(), d.Coordinate()) / 1000))
}

// Modes returns the distinct vehicle modes in legs, sorted.
func Modes(legs []Leg) []string {
	seen := make(map[string]struct{})
	var modes []string
	for _, l := range legs {
		if _, ok := seen[l.Mode]; ok {
			continue
		}
		seen[l.Mode] = struct{}{}
		modes = append(modes, l.Mode)
	}
	sort.Strings(modes)
	return modes
}
