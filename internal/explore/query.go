// Package explore queries observation hotspots around a map position.
package explore

import (
	"strconv"
	"strings"
	"time"

	jujuerrors "github.com/juju/errors"

	"github.com/nhle/lepinet/internal/model"
)

// DateFilter selects the observation window of a hotspot query.
type DateFilter string

const (
	Last3Days DateFilter = "last3days"
	Last7Days DateFilter = "last7days"
	Custom    DateFilter = "custom"
	AllDates  DateFilter = "all"
)

// AllSpecies matches every species.
const AllSpecies = "all"

// DefaultRadiusKm is used when no distance is given.
const DefaultRadiusKm = 10.0

// ParseDateFilter accepts the preset names; empty means last7days.
func ParseDateFilter(s string) (DateFilter, error) {
	switch f := DateFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return Last7Days, nil
	case Last3Days, Last7Days, Custom, AllDates:
		return f, nil
	}
	return "", jujuerrors.NotValidf("date filter %q", s)
}

// ParseDistance accepts "5km", "10km" or a positive number of kilometres.
// Empty means DefaultRadiusKm.
func ParseDistance(s string) (float64, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "km")
	if s == "" {
		return DefaultRadiusKm, nil
	}
	km, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || km <= 0 {
		return 0, jujuerrors.NotValidf("distance %q", s)
	}
	return km, nil
}

// Query describes a hotspot search.
type Query struct {
	Center   model.GeoPoint
	RadiusKm float64
	Species  string
	Filter   DateFilter
	// Start and End are YYYY-MM-DD and only used with the Custom filter.
	Start string
	End   string
}

// Request builds the function body for q as of now. Dates are UTC calendar
// days. A custom filter missing either bound falls back to an open start.
func (q Query) Request(now time.Time) model.HotspotRequest {
	now = now.UTC()
	end := now.Format(model.DateLayout)
	start := ""

	switch q.Filter {
	case Last3Days:
		start = now.AddDate(0, 0, -3).Format(model.DateLayout)
	case Last7Days, "":
		start = now.AddDate(0, 0, -7).Format(model.DateLayout)
	case Custom:
		if q.Start != "" && q.End != "" {
			start, end = q.Start, q.End
		}
	}

	radius := q.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}
	species := q.Species
	if species == "" {
		species = AllSpecies
	}

	return model.HotspotRequest{
		CenterLat: q.Center.Latitude,
		CenterLng: q.Center.Longitude,
		RadiusKm:  radius,
		Species:   species,
		StartDate: start,
		EndDate:   end,
	}
}
