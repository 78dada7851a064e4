package osrm

// routeResponse is the OSRM /route/v1 response body.
type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
	Routes  []route `json:"routes"`
}

type route struct {
	Geometry string     `json:"geometry"`
	Distance float64    `json:"distance"` // meters
	Duration float64    `json:"duration"` // seconds
	Legs     []routeLeg `json:"legs"`
}

// routeLeg covers the stretch between two consecutive request coordinates.
type routeLeg struct {
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Steps    []routeStep `json:"steps,omitempty"`
}

type routeStep struct {
	Name     string  `json:"name"`
	Ref      string  `json:"ref,omitempty"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// OSRM response codes.
const (
	codeOK           = "Ok"
	codeNoRoute      = "NoRoute"
	codeNoSegment    = "NoSegment"
	codeInvalidQuery = "InvalidQuery"
	codeInvalidValue = "InvalidValue"
	codeTooBig       = "TooBig"
)
