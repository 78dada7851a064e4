package network

import (
	"math"
	"strconv"
	"strings"

	"github.com/lanemap/lanemap/pkg/clock"
	"github.com/lanemap/lanemap/pkg/polyline"
)

// Row is one tokenized input record keyed by column header.
type Row map[string]string

// Get returns the trimmed value of a column. Header matching ignores case and
// surrounding whitespace.
func (r Row) Get(field string) string {
	if v, ok := r[field]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range r {
		if strings.EqualFold(strings.TrimSpace(k), field) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Input column names.
const (
	FieldName            = "name"
	FieldLat             = "property_lat"
	FieldLon             = "property_long"
	FieldAddress         = "property_address"
	FieldDeactivatedAt   = "deactivated_at"
	FieldOrigin          = "oc"
	FieldDestination     = "cn"
	FieldVehicleSize     = "vehicle_size"
	FieldVehicleMode     = "vmode"
	FieldCutoffDeparture = "cutoff_departure"
	FieldETA             = "eta"
	FieldTAT             = "tat"
	FieldRouteID         = "route_id"
	FieldRouteSetID      = "route_set_id"
)

// Facilities is the ingested facility set in first-seen order.
type Facilities struct {
	list   []Facility
	byName map[string]int

	// TotalRows is the number of rows offered to the builder.
	TotalRows int
	// Active is the number of rows that produced a facility.
	Active int
}

// All returns the facilities in ingestion order.
func (f *Facilities) All() []Facility {
	if f == nil {
		return nil
	}
	out := make([]Facility, len(f.list))
	copy(out, f.list)
	return out
}

// Lookup finds a facility by exact name.
func (f *Facilities) Lookup(name string) (Facility, bool) {
	if f == nil {
		return Facility{}, false
	}
	i, ok := f.byName[name]
	if !ok {
		return Facility{}, false
	}
	return f.list[i], true
}

// Len returns the number of facilities.
func (f *Facilities) Len() int {
	if f == nil {
		return 0
	}
	return len(f.list)
}

// BuildFacilities ingests facility rows. Deactivated rows, rows with a blank
// or already-seen name, and rows without usable coordinates are skipped.
func BuildFacilities(rows []Row) *Facilities {
	out := &Facilities{
		byName:    make(map[string]int, len(rows)),
		TotalRows: len(rows),
	}

	for _, row := range rows {
		if row.Get(FieldDeactivatedAt) != "" {
			continue
		}

		name := row.Get(FieldName)
		if name == "" {
			continue
		}
		if _, seen := out.byName[name]; seen {
			continue
		}

		lat, ok := parseCoordinate(row.Get(FieldLat), 90)
		if !ok {
			continue
		}
		lon, ok := parseCoordinate(row.Get(FieldLon), 180)
		if !ok {
			continue
		}

		address := row.Get(FieldAddress)
		if address == "" {
			address = NoAddress
		}

		out.byName[name] = len(out.list)
		out.list = append(out.list, Facility{
			Name:    name,
			Lat:     lat,
			Lon:     lon,
			Address: address,
			Type:    ClassifyFacility(name),
		})
		out.Active++
	}

	return out
}

func parseCoordinate(s string, limit float64) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
		return 0, false
	}
	return v, true
}

// LegSet is the ingested, deduplicated leg list.
type LegSet struct {
	Legs []Leg

	// TotalRows is the number of rows offered to the builder.
	TotalRows int
	// Valid is the number of distinct legs kept.
	Valid int
}

// BuildLegs ingests leg rows. Rows missing either endpoint are skipped and
// rows repeating an earlier leg's identity are dropped.
func BuildLegs(rows []Row) *LegSet {
	out := &LegSet{TotalRows: len(rows)}
	seen := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		origin := cleanName(row.Get(FieldOrigin))
		destination := cleanName(row.Get(FieldDestination))
		if origin == "" || destination == "" {
			continue
		}

		leg := Leg{
			Origin:       origin,
			Destination:  destination,
			Mode:         strings.ToUpper(row.Get(FieldVehicleMode)),
			Size:         row.Get(FieldVehicleSize),
			DepartureRaw: row.Get(FieldCutoffDeparture),
			ArrivalRaw:   row.Get(FieldETA),
			TAT:          row.Get(FieldTAT),
			RouteID:      orNone(row.Get(FieldRouteID)),
			RouteSetID:   orNone(row.Get(FieldRouteSetID)),
		}
		if leg.Mode == "" {
			leg.Mode = UnknownMode
		}
		if leg.Size == "" {
			leg.Size = UnknownSize
		}
		// Unparseable clock values stay invalid and sort last.
		leg.Departure, _ = clock.Parse(leg.DepartureRaw)
		leg.Arrival, _ = clock.Parse(leg.ArrivalRaw)

		id := leg.identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out.Legs = append(out.Legs, leg)
		out.Valid++
	}

	return out
}

// cleanName drops a parenthetical suffix, e.g. "DEL_GW (Old)" -> "DEL_GW".
func cleanName(name string) string {
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

func orNone(s string) string {
	if s == "" || strings.EqualFold(s, NoRoute) {
		return NoRoute
	}
	return s
}

// DegreeStats counts outgoing legs at each origin and incoming legs at each destination.
func DegreeStats(legs []Leg) map[string]Degree {
	stats := make(map[string]Degree)
	for _, l := range legs {
		o := stats[l.Origin]
		o.Out++
		stats[l.Origin] = o

		d := stats[l.Destination]
		d.In++
		stats[l.Destination] = d
	}
	return stats
}

// Visible returns the facilities that have at least one leg.
func Visible(facilities *Facilities, stats map[string]Degree) []Facility {
	var out []Facility
	for _, f := range facilities.All() {
		if stats[f.Name].Active() {
			out = append(out, f)
		}
	}
	return out
}

// Resolved reports whether both endpoints of a leg are known facilities.
func (f *Facilities) Resolved(l Leg) bool {
	_, okO := f.Lookup(l.Origin)
	_, okD := f.Lookup(l.Destination)
	return okO && okD
}

// Locate returns the coordinate of a named facility.
func (f *Facilities) Locate(name string) (polyline.Coordinate, bool) {
	fac, ok := f.Lookup(name)
	if !ok {
		return polyline.Coordinate{}, false
	}
	return fac.Coordinate(), true
}
