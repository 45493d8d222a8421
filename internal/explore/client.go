package explore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/juju/clock"
	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/model"
)

// DefaultGeocodeURL is the Google geocoding endpoint.
const DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Remote is the part of the backend used for exploring.
type Remote interface {
	Invoke(ctx context.Context, functionURL string, body, out any) error
	Select(ctx context.Context, collection string, query url.Values, out any) error
}

// Client runs hotspot, species and geocoding lookups.
type Client struct {
	remote      Remote
	functionURL string
	mapsKey     string
	geocodeURL  string
	httpClient  *http.Client
	clock       clock.Clock
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithGeocoder enables Geocode with a Google Maps API key.
func WithGeocoder(apiKey string) Option {
	return func(c *Client) { c.mapsKey = apiKey }
}

// WithGeocodeURL overrides the geocoding endpoint.
func WithGeocodeURL(u string) Option {
	return func(c *Client) { c.geocodeURL = u }
}

// WithHTTPClient sets the client used for geocoding.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock sets the clock that anchors relative date filters.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a client calling the hotspot function at functionURL.
// remote should carry the signed-in user's token.
func NewClient(remote Remote, functionURL string, opts ...Option) *Client {
	c := &Client{
		remote:      remote,
		functionURL: functionURL,
		geocodeURL:  DefaultGeocodeURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		clock:       clock.WallClock,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hotspots returns the observation clusters matching q.
func (c *Client) Hotspots(ctx context.Context, q Query) (model.HotspotResult, error) {
	if c.functionURL == "" {
		return model.HotspotResult{}, jujuerrors.NotSupportedf("hotspots without a function url")
	}

	req := q.Request(c.clock.Now())
	var res model.HotspotResult
	if err := c.remote.Invoke(ctx, c.functionURL, req, &res); err != nil {
		return model.HotspotResult{}, fmt.Errorf("fetching hotspots: %w", err)
	}

	c.logger.Debug("hotspots fetched",
		zap.Int("hotspots", res.HotspotCount),
		zap.Int("species", res.SpeciesCount),
		zap.String("start", req.StartDate),
		zap.String("end", req.EndDate),
	)
	return res, nil
}

// Species lists the distinct species names ever recorded, sorted.
func (c *Client) Species(ctx context.Context) ([]string, error) {
	q := url.Values{
		"select":       {"species_name"},
		"species_name": {"not.is.null"},
	}
	var rows []struct {
		SpeciesName string `json:"species_name"`
	}
	if err := c.remote.Select(ctx, model.CollectionRecords, q, &rows); err != nil {
		return nil, fmt.Errorf("loading species: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.SpeciesName == "" || seen[r.SpeciesName] {
			continue
		}
		seen[r.SpeciesName] = true
		names = append(names, r.SpeciesName)
	}
	sort.Strings(names)
	return names, nil
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Place is a geocoded address.
type Place struct {
	Address string
	Point   model.GeoPoint
}

// Geocode resolves address to its first match. No match is a NotFound error.
func (c *Client) Geocode(ctx context.Context, address string) (Place, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Place{}, jujuerrors.NotValidf("empty address")
	}
	if c.mapsKey == "" {
		return Place{}, jujuerrors.NotSupportedf("geocoding without a maps api key")
	}

	u := c.geocodeURL + "?" + url.Values{"address": {address}, "key": {c.mapsKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Place{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("geocoding %q: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("geocoding %q: status %d", address, resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Place{}, fmt.Errorf("decoding geocode response: %w", err)
	}

	switch body.Status {
	case "", "OK":
	case "ZERO_RESULTS":
		return Place{}, jujuerrors.NotFoundf("location %q", address)
	default:
		return Place{}, fmt.Errorf("geocoding %q: %s %s", address, body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return Place{}, jujuerrors.NotFoundf("location %q", address)
	}

	first := body.Results[0]
	return Place{
		Address: first.FormattedAddress,
		Point: model.GeoPoint{
			Latitude:  first.Geometry.Location.Lat,
			Longitude: first.Geometry.Location.Lng,
		},
	}, nil
}
