// Package osrm provides the free-tier routing provider backed by an OSRM server.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lanemap/lanemap/internal/provider/resilience"
	"github.com/lanemap/lanemap/internal/routing"
	"github.com/lanemap/lanemap/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "osrm"

	// DefaultBaseURL is the public OSRM demo server.
	DefaultBaseURL = "https://router.project-osrm.org"

	// DefaultProfile is the OSRM routing profile.
	DefaultProfile = "driving"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultRequestsPerSecond matches the demo server usage policy.
	DefaultRequestsPerSecond = 1
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OSRM client.
type ClientConfig struct {
	// BaseURL is the server base URL (optional, defaults to the public demo server).
	BaseURL string

	// Profile is the routing profile (optional, defaults to driving).
	Profile string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a retry-free resilient client throttled to RequestsPerSecond.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 15s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls when HTTPClient is nil (default: 1).
	RequestsPerSecond float64

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OSRM route service client.
type Client struct {
	baseURL    string
	profile    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OSRM client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	profile := cfg.Profile
	if profile == "" {
		profile = DefaultProfile
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.NoRetry = true
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		clientCfg.Timeout = cfg.Timeout
		if clientCfg.Timeout == 0 {
			clientCfg.Timeout = DefaultTimeout
		}
		clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
		if clientCfg.RequestsPerSecond == 0 {
			clientCfg.RequestsPerSecond = DefaultRequestsPerSecond
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    baseURL,
		profile:    profile,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Route requests one route through req.Points in order.
func (c *Client) Route(ctx context.Context, req routing.RouteRequest) (*routing.RouteResponse, error) {
	if len(req.Points) < 2 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "TOO_FEW_POINTS",
			Message:  "at least two points are required",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.routeURL(req), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("profile", c.profile).
		Int("points", len(req.Points)).
		Bool("steps", req.Steps).
		Msg("requesting route from OSRM")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var osrmResp routeResponse
	if err := json.Unmarshal(body, &osrmResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, statusError(resp.StatusCode, "")
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || osrmResp.Code != codeOK {
		return nil, c.handleErrorResponse(resp.StatusCode, &osrmResp)
	}
	if len(osrmResp.Routes) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "provider returned no routes",
			Err:      routing.ErrNoRouteFound,
		}
	}

	result := toRouteResponse(&osrmResp.Routes[0])

	c.logger.Debug().
		Float64("distance_m", result.DistanceMeters).
		Int("legs", len(result.Legs)).
		Msg("received route from OSRM")

	return result, nil
}

// routeURL builds /route/v1/{profile}/{lon,lat;...}. OSRM takes coordinates in lon,lat order.
func (c *Client) routeURL(req routing.RouteRequest) string {
	coords := make([]string, len(req.Points))
	for i, p := range req.Points {
		coords[i] = strconv.FormatFloat(p.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
	}
	return fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=polyline&steps=%t",
		c.baseURL, c.profile, strings.Join(coords, ";"), req.Steps)
}

// handleErrorResponse maps OSRM error codes to domain errors.
func (c *Client) handleErrorResponse(statusCode int, resp *routeResponse) error {
	switch resp.Code {
	case codeNoRoute, codeNoSegment:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  resp.Message,
			Err:      routing.ErrNoRouteFound,
		}
	case codeInvalidQuery, codeInvalidValue, codeTooBig:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  resp.Message,
			Err:      routing.ErrInvalidCoordinates,
		}
	}
	return statusError(statusCode, resp.Message)
}

func statusError(statusCode int, message string) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		if message == "" {
			message = fmt.Sprintf("routing provider returned status %d", statusCode)
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  message,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

func toRouteResponse(r *route) *routing.RouteResponse {
	out := &routing.RouteResponse{
		Geometry:        polyline.Decode(r.Geometry),
		DistanceMeters:  r.Distance,
		DurationSeconds: r.Duration,
		Legs:            make([]routing.LegSummary, 0, len(r.Legs)),
		Provider:        ProviderName,
		FetchedAt:       time.Now(),
	}

	for i := range r.Legs {
		leg := &r.Legs[i]
		out.Legs = append(out.Legs, routing.LegSummary{
			DistanceMeters:  leg.Distance,
			DurationSeconds: leg.Duration,
		})
		for _, step := range leg.Steps {
			road := step.Name
			if road == "" {
				road = step.Ref
			}
			out.Steps = append(out.Steps, routing.Step{
				Road:            road,
				DistanceMeters:  step.Distance,
				DurationSeconds: step.Duration,
			})
		}
	}
	return out
}
