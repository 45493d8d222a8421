package explore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/clock/testclock"
	jujuerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lepinet/internal/model"
)

var now = time.Date(2025, time.March, 10, 23, 30, 0, 0, time.UTC)

func TestQueryRequest(t *testing.T) {
	center := model.GeoPoint{Latitude: 7.8731, Longitude: 80.7718}
	tests := []struct {
		name string
		q    Query
		want model.HotspotRequest
	}{
		{
			name: "defaults",
			q:    Query{Center: center},
			want: model.HotspotRequest{CenterLat: 7.8731, CenterLng: 80.7718, RadiusKm: 10, Species: "all", StartDate: "2025-03-03", EndDate: "2025-03-10"},
		},
		{
			name: "last three days",
			q:    Query{Center: center, Filter: Last3Days, RadiusKm: 5, Species: "Common Rose"},
			want: model.HotspotRequest{CenterLat: 7.8731, CenterLng: 80.7718, RadiusKm: 5, Species: "Common Rose", StartDate: "2025-03-07", EndDate: "2025-03-10"},
		},
		{
			name: "custom range",
			q:    Query{Center: center, Filter: Custom, Start: "2025-01-01", End: "2025-01-31"},
			want: model.HotspotRequest{CenterLat: 7.8731, CenterLng: 80.7718, RadiusKm: 10, Species: "all", StartDate: "2025-01-01", EndDate: "2025-01-31"},
		},
		{
			name: "custom without bounds",
			q:    Query{Center: center, Filter: Custom, Start: "2025-01-01"},
			want: model.HotspotRequest{CenterLat: 7.8731, CenterLng: 80.7718, RadiusKm: 10, Species: "all", EndDate: "2025-03-10"},
		},
		{
			name: "all dates",
			q:    Query{Center: center, Filter: AllDates, RadiusKm: 2.5},
			want: model.HotspotRequest{CenterLat: 7.8731, CenterLng: 80.7718, RadiusKm: 2.5, Species: "all", EndDate: "2025-03-10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.q.Request(now)); diff != "" {
				t.Errorf("Request() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePresets(t *testing.T) {
	f, err := ParseDateFilter("")
	require.NoError(t, err)
	assert.Equal(t, Last7Days, f)

	f, err = ParseDateFilter("Last3Days")
	require.NoError(t, err)
	assert.Equal(t, Last3Days, f)

	_, err = ParseDateFilter("yesterday")
	assert.True(t, errors.Is(err, jujuerrors.NotValid))

	for in, want := range map[string]float64{"": 10, "5km": 5, "10km": 10, "2.5": 2.5, " 7 km ": 7} {
		got, err := ParseDistance(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"far", "0", "-3km"} {
		_, err := ParseDistance(in)
		assert.True(t, errors.Is(err, jujuerrors.NotValid), in)
	}
}

type fakeRemote struct {
	invokedURL string
	body       any
	reply      string
	rows       string
}

func (f *fakeRemote) Invoke(_ context.Context, functionURL string, body, out any) error {
	f.invokedURL, f.body = functionURL, body
	return json.Unmarshal([]byte(f.reply), out)
}

func (f *fakeRemote) Select(_ context.Context, _ string, _ url.Values, out any) error {
	return json.Unmarshal([]byte(f.rows), out)
}

func TestHotspots(t *testing.T) {
	r := &fakeRemote{reply: `{
		"hotspots":[{"lat":7.1,"lng":80.2,"recordCount":3,"speciesCount":2,"species":["Common Rose","Blue Mormon"]}],
		"hotspotCount":1,"speciesCount":2,
		"allRecords":[{"lat":7.1,"lng":80.2},{"lat":7.11,"lng":80.21}]
	}`}
	c := NewClient(r, "https://fn.example/hotspots", WithClock(testclock.NewClock(now)))

	res, err := c.Hotspots(context.Background(), Query{Filter: Last3Days})
	require.NoError(t, err)
	assert.Equal(t, "https://fn.example/hotspots", r.invokedURL)
	assert.Equal(t, "2025-03-07", r.body.(model.HotspotRequest).StartDate)
	assert.Equal(t, 1, res.HotspotCount)
	assert.Equal(t, []string{"Common Rose", "Blue Mormon"}, res.Hotspots[0].Species)
	assert.Equal(t, []model.HeatPoint{
		{Latitude: 7.1, Longitude: 80.2, Weight: 1},
		{Latitude: 7.11, Longitude: 80.21, Weight: 1},
	}, res.HeatPoints())
}

func TestHotspotsWithoutFunction(t *testing.T) {
	_, err := NewClient(&fakeRemote{}, "").Hotspots(context.Background(), Query{})
	assert.True(t, errors.Is(err, jujuerrors.NotSupported))
}

func TestSpecies(t *testing.T) {
	r := &fakeRemote{rows: `[
		{"species_name":"Common Rose"},{"species_name":"Blue Mormon"},
		{"species_name":"Common Rose"},{"species_name":""}
	]`}
	got, err := NewClient(r, "").Species(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue Mormon", "Common Rose"}, got)
}

func geocodeServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Sinharaja Forest", r.URL.Query().Get("address"))
		assert.Equal(t, "maps-key", r.URL.Query().Get("key"))
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeocode(t *testing.T) {
	srv := geocodeServer(t, `{"status":"OK","results":[
		{"formatted_address":"Sinharaja Forest Reserve, Sri Lanka","geometry":{"location":{"lat":6.4,"lng":80.5}}}
	]}`)
	c := NewClient(&fakeRemote{}, "", WithGeocoder("maps-key"), WithGeocodeURL(srv.URL))

	p, err := c.Geocode(context.Background(), " Sinharaja Forest ")
	require.NoError(t, err)
	assert.Equal(t, Place{
		Address: "Sinharaja Forest Reserve, Sri Lanka",
		Point:   model.GeoPoint{Latitude: 6.4, Longitude: 80.5},
	}, p)
}

func TestGeocodeNotFound(t *testing.T) {
	srv := geocodeServer(t, `{"status":"ZERO_RESULTS","results":[]}`)
	c := NewClient(&fakeRemote{}, "", WithGeocoder("maps-key"), WithGeocodeURL(srv.URL))

	_, err := c.Geocode(context.Background(), "Sinharaja Forest")
	assert.True(t, errors.Is(err, jujuerrors.NotFound))
}

func TestGeocodeRequiresKey(t *testing.T) {
	_, err := NewClient(&fakeRemote{}, "").Geocode(context.Background(), "Kandy")
	assert.True(t, errors.Is(err, jujuerrors.NotSupported))
}
