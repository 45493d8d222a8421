package model

// HotspotRequest is the body sent to the hotspot function.
type HotspotRequest struct {
	CenterLat float64 `json:"centerLat"`
	CenterLng float64 `json:"centerLng"`
	RadiusKm  float64 `json:"radiusKm"`
	Species   string  `json:"species"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
}

// Hotspot is an aggregated observation cluster.
type Hotspot struct {
	Latitude     float64  `json:"lat"`
	Longitude    float64  `json:"lng"`
	RecordCount  int      `json:"recordCount"`
	SpeciesCount int      `json:"speciesCount"`
	Species      []string `json:"species,omitempty"`
}

// RecordPoint is a single located record returned with a hotspot query.
type RecordPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// HotspotResult is the response of the hotspot function.
type HotspotResult struct {
	Hotspots     []Hotspot     `json:"hotspots"`
	HotspotCount int           `json:"hotspotCount"`
	SpeciesCount int           `json:"speciesCount"`
	AllRecords   []RecordPoint `json:"allRecords"`
}

// HeatPoint is a weighted point for a heatmap layer.
type HeatPoint struct {
	Latitude  float64
	Longitude float64
	Weight    float64
}

// HeatPoints converts every returned record into a unit-weight heat point.
func (r HotspotResult) HeatPoints() []HeatPoint {
	points := make([]HeatPoint, 0, len(r.AllRecords))
	for _, rec := range r.AllRecords {
		points = append(points, HeatPoint{
			Latitude:  rec.Latitude,
			Longitude: rec.Longitude,
			Weight:    1,
		})
	}
	return points
}
