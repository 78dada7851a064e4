package rediscache_test

import (
	"context"

	"github.com/lanemap/lanemap/internal/network"
	"github.com/lanemap/lanemap/internal/routing"
	"github.com/lanemap/lanemap/pkg/clock"
)

type providerFunc func(ctx context.Context, req routing.RouteRequest) (*routing.RouteResponse, error)

func (f providerFunc) Route(ctx context.Context, req routing.RouteRequest) (*routing.RouteResponse, error) {
	return f(ctx, req)
}

func (f providerFunc) Name() string { return "stub" }

type locator map[string]routing.Coordinate

func (l locator) Locate(name string) (routing.Coordinate, bool) {
	c, ok := l[name]
	return c, ok
}

func legAB() network.Leg {
	return network.Leg{
		Origin:      "A",
		Destination: "B",
		Departure:   clock.MustParse("07:00"),
		Arrival:     clock.MustParse("07:30"),
		RouteID:     network.NoRoute,
		RouteSetID:  network.NoRoute,
	}
}
