package network_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanemap/lanemap/internal/network"
)

func facilityRows() []network.Row {
	return []network.Row{
		{"name": "DEL_GW", "property_lat": "28.61", "property_long": "77.20", "property_address": "Okhla"},
		{"name": "BOM_H", "property_lat": "19.07", "property_long": "72.87"},
		{"name": "BLR_I", "property_lat": "12.97", "property_long": "77.59"},
		{"name": "PNQ_X", "property_lat": "18.52", "property_long": "73.85"},
		{"name": "DEL_GW", "property_lat": "1", "property_long": "1"},                                // duplicate name
		{"name": "OLD_H", "property_lat": "1", "property_long": "1", "deactivated_at": "2024-01-01"}, // deactivated
		{"name": "NOPOS_H", "property_lat": "", "property_long": "72.1"},                             // missing lat
		{"name": "BAD_H", "property_lat": "north", "property_long": "72.1"},                          // unparseable
		{"name": "  ", "property_lat": "1", "property_long": "1"},                                    // blank name
	}
}

func TestBuildFacilities(t *testing.T) {
	fs := network.BuildFacilities(facilityRows())

	assert.Equal(t, 9, fs.TotalRows)
	assert.Equal(t, 4, fs.Active)
	require.Equal(t, 4, fs.Len())

	del, ok := fs.Lookup("DEL_GW")
	require.True(t, ok)
	assert.InDelta(t, 28.61, del.Lat, 1e-9, "first occurrence wins")
	assert.Equal(t, "Okhla", del.Address)
	assert.Equal(t, network.TypeGateway, del.Type)

	bom, _ := fs.Lookup("BOM_H")
	assert.Equal(t, network.NoAddress, bom.Address)
	assert.Equal(t, network.TypeHub, bom.Type)

	blr, _ := fs.Lookup("BLR_I")
	assert.Equal(t, network.TypeIPC, blr.Type)

	pnq, _ := fs.Lookup("PNQ_X")
	assert.Equal(t, network.TypeOther, pnq.Type)

	_, ok = fs.Lookup("OLD_H")
	assert.False(t, ok)
}

func TestBuildFacilities_HeaderCase(t *testing.T) {
	fs := network.BuildFacilities([]network.Row{
		{" Name ": "X_HUB", "PROPERTY_LAT": "10", "Property_Long": "20"},
	})
	f, ok := fs.Lookup("X_HUB")
	require.True(t, ok)
	assert.Equal(t, network.TypeHub, f.Type)
}

func TestBuildFacilities_Idempotent(t *testing.T) {
	a := network.BuildFacilities(facilityRows())
	b := network.BuildFacilities(append(facilityRows(), facilityRows()...))

	assert.Equal(t, a.All(), b.All())
}

func TestBuildFacilities_Empty(t *testing.T) {
	fs := network.BuildFacilities(nil)
	assert.Equal(t, 0, fs.Len())
	assert.Empty(t, fs.All())
}

func legRows() []network.Row {
	return []network.Row{
		{"oc": "DEL_GW (North)", "cn": "BOM_H", "vmode": "ftl", "vehicle_size": "32ft", "cutoff_departure": "08:00", "eta": "22:00", "tat": "14", "route_id": "R1", "route_set_id": "S1"},
		{"oc": "DEL_GW", "cn": "BOM_H", "vmode": "FTL", "vehicle_size": "32ft", "cutoff_departure": "08:00", "eta": "22:00", "tat": "14", "route_id": "R1", "route_set_id": "S1"}, // duplicate after cleaning
		{"oc": "BOM_H", "cn": "DEL_GW", "cutoff_departure": "23:00", "eta": "13:00"},
		{"oc": "", "cn": "DEL_GW"},
		{"oc": "BOM_H"},
	}
}

func TestBuildLegs(t *testing.T) {
	ls := network.BuildLegs(legRows())

	assert.Equal(t, 5, ls.TotalRows)
	assert.Equal(t, 2, ls.Valid)
	require.Len(t, ls.Legs, 2)

	first := ls.Legs[0]
	assert.Equal(t, "DEL_GW", first.Origin, "parenthetical suffix stripped")
	assert.Equal(t, "FTL", first.Mode)
	assert.Equal(t, "08:00", first.Departure.String())
	assert.Equal(t, network.GroupKey{RouteID: "R1", RouteSetID: "S1"}, first.Key())
	tat, ok := first.TATHours()
	assert.True(t, ok)
	assert.InDelta(t, 14.0, tat, 1e-9)

	second := ls.Legs[1]
	assert.Equal(t, network.UnknownMode, second.Mode)
	assert.Equal(t, network.UnknownSize, second.Size)
	assert.True(t, second.Key().IsStandalone())
	_, ok = second.TATHours()
	assert.False(t, ok)
}

func TestBuildLegs_DistinctRunsAreDistinctLegs(t *testing.T) {
	ls := network.BuildLegs([]network.Row{
		{"oc": "A", "cn": "B", "cutoff_departure": "08:00", "eta": "10:00", "route_id": "1", "route_set_id": "1"},
		{"oc": "A", "cn": "B", "cutoff_departure": "08:00", "eta": "10:00", "route_id": "2", "route_set_id": "1"},
	})
	assert.Len(t, ls.Legs, 2)
}

func TestBuildLegs_InvalidTimesKept(t *testing.T) {
	ls := network.BuildLegs([]network.Row{
		{"oc": "A", "cn": "B", "cutoff_departure": "soon", "eta": "18:00 (+1)"},
	})
	require.Len(t, ls.Legs, 1)
	assert.False(t, ls.Legs[0].Departure.IsValid())
	assert.Equal(t, "soon", ls.Legs[0].DepartureRaw)
	assert.Equal(t, "18:00", ls.Legs[0].Arrival.String())
}

func TestDegreeStats(t *testing.T) {
	ls := network.BuildLegs(legRows())
	stats := network.DegreeStats(ls.Legs)

	assert.Equal(t, network.Degree{In: 1, Out: 1}, stats["DEL_GW"])
	assert.Equal(t, network.Degree{In: 1, Out: 1}, stats["BOM_H"])
	assert.False(t, stats["BLR_I"].Active())
}

func TestVisible(t *testing.T) {
	fs := network.BuildFacilities(facilityRows())
	ls := network.BuildLegs(legRows())

	visible := network.Visible(fs, network.DegreeStats(ls.Legs))
	names := make([]string, 0, len(visible))
	for _, f := range visible {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"DEL_GW", "BOM_H"}, names)
}

func TestFacilities_Resolved(t *testing.T) {
	fs := network.BuildFacilities(facilityRows())
	assert.True(t, fs.Resolved(network.Leg{Origin: "DEL_GW", Destination: "BOM_H"}))
	assert.False(t, fs.Resolved(network.Leg{Origin: "DEL_GW", Destination: "GHOST_H"}))
}

func TestClassifyFacility(t *testing.T) {
	tests := map[string]network.FacilityType{
		"DEL_GW":       network.TypeGateway,
		"Pune_Hub":     network.TypeHub,
		"pune_h":       network.TypeHub,
		"Chennai_I":    network.TypeIPC,
		"Standalone":   network.TypeOther,
		"Kolkata_DC":   network.TypeOther,
		"Surat_GW_Old": network.TypeOther,
	}
	for name, want := range tests {
		assert.Equal(t, want, network.ClassifyFacility(name), name)
	}
}
