package models

import (
	"github.com/lanemap/lanemap/internal/routing"
)

// ResolveRequest is the body of POST /v1/trips:resolve.
type ResolveRequest struct {
	UnitIDs []string `json:"unitIds"`
	// Tier defaults to free.
	Tier string `json:"tier,omitempty"`
}

// MaxResolveUnits caps one resolve request.
const MaxResolveUnits = 500

// Validate returns field errors for a malformed request.
func (r ResolveRequest) Validate() []FieldError {
	var errs []FieldError
	switch {
	case len(r.UnitIDs) == 0:
		errs = append(errs, FieldError{Field: "unitIds", Message: "at least one unit id is required", Code: "REQUIRED"})
	case len(r.UnitIDs) > MaxResolveUnits:
		errs = append(errs, FieldError{Field: "unitIds", Message: "too many unit ids", Code: "TOO_MANY"})
	}
	if _, err := routing.ParseTier(r.Tier); err != nil {
		errs = append(errs, FieldError{Field: "tier", Message: "must be free or precision", Code: "INVALID"})
	}
	return errs
}

// ResolveProgress is one line of a streamed resolve response.
type ResolveProgress struct {
	BatchID string `json:"batchId"`
	routing.BatchResult
}

// ResolveResponse is the buffered resolve response, and the closing line of a streamed one.
type ResolveResponse struct {
	BatchID   string                `json:"batchId"`
	Tier      routing.Tier          `json:"tier"`
	Total     int                   `json:"total"`
	Completed int                   `json:"completed"`
	Resolved  int                   `json:"resolved"`
	Failed    int                   `json:"failed"`
	Cancelled int                   `json:"cancelled"`
	Results   []routing.BatchResult `json:"results,omitempty"`
}

// Add folds one unit outcome into the totals.
func (r *ResolveResponse) Add(res routing.BatchResult) {
	r.Completed = res.Completed
	switch res.State {
	case routing.StateResolved:
		r.Resolved++
	case routing.StateResolveFailed:
		r.Failed++
	default:
		r.Cancelled++
	}
}

// SegmentsResponse is the body of GET /v1/trips/{id}/segments.
type SegmentsResponse struct {
	UnitID          string                `json:"unitId"`
	Tier            routing.Tier          `json:"tier"`
	DistanceMeters  float64               `json:"distanceMeters"`
	DurationSeconds float64               `json:"durationSeconds"`
	Segments        []routing.RoadSegment `json:"segments"`
}

// UnlockRequest is the body of POST /v1/unlock.
type UnlockRequest struct {
	Passkey string `json:"passkey"`
}

// UnlockResponse carries a precision unlock token.
type UnlockResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"tokenType"`
	Tier      routing.Tier `json:"tier"`
	ExpiresAt Timestamp    `json:"expiresAt"`
}
