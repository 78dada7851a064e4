package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lanemap/lanemap/internal/api/models"
	"github.com/lanemap/lanemap/internal/api/response"
	"github.com/lanemap/lanemap/internal/engine"
	"github.com/lanemap/lanemap/internal/network"
)

// NetworkHandler serves network ingestion and facility views.
type NetworkHandler struct {
	session *engine.Session
	logger  zerolog.Logger
}

// NewNetworkHandler creates a NetworkHandler.
func NewNetworkHandler(session *engine.Session, logger zerolog.Logger) *NetworkHandler {
	return &NetworkHandler{session: session, logger: logger}
}

// Load handles POST /v1/network. The uploaded rows replace the whole network.
func (h *NetworkHandler) Load(w http.ResponseWriter, r *http.Request) {
	var input models.NetworkLoadRequest
	if !decodeJSON(w, r, &input) {
		return
	}
	if len(input.Facilities) == 0 && len(input.Legs) == 0 {
		response.BadRequest(w, r, "facilities or legs are required", []models.FieldError{
			{Field: "facilities", Message: "required if legs are empty", Code: "REQUIRED"},
			{Field: "legs", Message: "required if facilities are empty", Code: "REQUIRED"},
		})
		return
	}

	summary := h.session.Load(models.NetworkRows(input.Facilities), models.NetworkRows(input.Legs))
	response.JSON(w, r, http.StatusOK, models.NetworkLoadResponse{
		Summary: summary,
		Modes:   h.session.Modes(),
	})
}

// ListFacilities handles GET /v1/facilities.
func (h *NetworkHandler) ListFacilities(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.FacilityList{
		Facilities: h.session.Facilities(),
		Modes:      h.session.Modes(),
	})
}

// Focus handles GET /v1/facilities/{name}/focus.
func (h *NetworkHandler) Focus(w http.ResponseWriter, r *http.Request) {
	name, ok := facilityParam(w, r)
	if !ok {
		return
	}
	filter, fieldErrs := parseFocusFilter(r.URL.Query())
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid focus filter", fieldErrs)
		return
	}

	focus, err := h.session.Focus(name, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, focus)
}

// Trips handles GET /v1/facilities/{name}/trips.
func (h *NetworkHandler) Trips(w http.ResponseWriter, r *http.Request) {
	name, ok := facilityParam(w, r)
	if !ok {
		return
	}
	units, err := h.session.TripsFor(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.TripList{
		Facility: name,
		Count:    len(units),
		Trips:    units,
	})
}

func facilityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || strings.TrimSpace(name) == "" {
		response.BadRequest(w, r, "invalid facility name", nil)
		return "", false
	}
	return name, true
}

// parseFocusFilter reads category, sort, dir, outbound, inbound and modes.
// Modes is a comma-separated list; omitted means every mode.
func parseFocusFilter(q url.Values) (network.FocusFilter, []models.FieldError) {
	var (
		f    network.FocusFilter
		errs []models.FieldError
	)

	switch c := network.Category(strings.ToUpper(q.Get("category"))); c {
	case "", network.CategoryAll:
		f.Category = network.CategoryAll
	case network.CategoryFTL, network.CategoryCarting, network.CategoryLong:
		f.Category = c
	default:
		errs = append(errs, models.FieldError{Field: "category", Message: "must be ALL, FTL, CARTING or LONG", Code: "INVALID"})
	}

	switch s := network.SortKey(strings.ToLower(q.Get("sort"))); s {
	case "", network.SortByDistance:
		f.SortBy = network.SortByDistance
	case network.SortBySize:
		f.SortBy = s
	default:
		errs = append(errs, models.FieldError{Field: "sort", Message: "must be dist or size", Code: "INVALID"})
	}

	switch strings.ToLower(q.Get("dir")) {
	case "", "desc":
	case "asc":
		f.Asc = true
	default:
		errs = append(errs, models.FieldError{Field: "dir", Message: "must be asc or desc", Code: "INVALID"})
	}

	for _, dir := range []struct {
		field string
		hide  *bool
	}{{"outbound", &f.HideOutbound}, {"inbound", &f.HideInbound}} {
		v := q.Get(dir.field)
		if v == "" {
			continue
		}
		show, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, models.FieldError{Field: dir.field, Message: "must be a boolean", Code: "INVALID"})
			continue
		}
		*dir.hide = !show
	}

	if q.Has("modes") {
		f.Modes = make(map[string]bool)
		for _, m := range strings.Split(q.Get("modes"), ",") {
			if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
				f.Modes[m] = true
			}
		}
	}

	return f, errs
}
