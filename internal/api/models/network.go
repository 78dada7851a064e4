package models

import (
	"github.com/lanemap/lanemap/internal/compose"
	"github.com/lanemap/lanemap/internal/engine"
	"github.com/lanemap/lanemap/internal/network"
)

// NetworkLoadRequest is the body of POST /v1/network.
type NetworkLoadRequest struct {
	Facilities []Row `json:"facilities"`
	Legs       []Row `json:"legs"`
}

// NetworkRows converts request rows for the network builder.
func NetworkRows(rows []Row) []network.Row {
	out := make([]network.Row, len(rows))
	for i, r := range rows {
		out[i] = network.Row(r)
	}
	return out
}

// NetworkLoadResponse reports what the builder kept.
type NetworkLoadResponse struct {
	engine.Summary
	Modes []string `json:"modes"`
}

// FacilityList is the body of GET /v1/facilities.
type FacilityList struct {
	Facilities []engine.FacilityView `json:"facilities"`
	Modes      []string              `json:"modes"`
}

// TripList is the body of GET /v1/facilities/{name}/trips.
type TripList struct {
	Facility string             `json:"facility"`
	Count    int                `json:"count"`
	Trips    []compose.TripUnit `json:"trips"`
}
