package identify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/model"
)

// ErrModelNotFound means the model host answered 404 for the model itself,
// which happens when the hosting space is private or asleep.
var ErrModelNotFound = errors.New("model server not found, check that the space is public")

// ServerError is a failed prediction request or an error reported by the
// model in an otherwise successful reply.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Status == http.StatusOK {
		return "prediction failed: " + e.Message
	}
	return fmt.Sprintf("model server error %d: %s", e.Status, e.Message)
}

// MockPrediction is returned in mock mode.
var MockPrediction = model.Prediction{
	SpeciesName: "Common Rose",
	SpeciesID:   "b006",
	Confidence:  0.94,
}

const (
	defaultTimeout   = 60 * time.Second
	defaultMockDelay = 2 * time.Second
)

// Client calls the species identification model.
type Client struct {
	url        string
	httpClient *http.Client
	mock       bool
	mockDelay  time.Duration
	clock      clock.Clock
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds a single prediction.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMock makes Predict return MockPrediction after delay without any
// network call.
func WithMock(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.mock = true
		c.mockDelay = delay
	}
}

// WithClock sets the clock used for the mock delay.
func WithClock(clk clock.Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}

// WithClientLogger sets the logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a client for the /predict endpoint at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		mockDelay:  defaultMockDelay,
		clock:      clock.WallClock,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict uploads a JPEG image and returns the model's best match.
func (c *Client) Predict(ctx context.Context, filename string, image io.Reader) (model.Prediction, error) {
	if c.mock {
		select {
		case <-ctx.Done():
			return model.Prediction{}, ctx.Err()
		case <-c.clock.After(c.mockDelay):
		}
		return MockPrediction, nil
	}

	if filename == "" {
		filename = "photo.jpg"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(header)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("creating form: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return model.Prediction{}, fmt.Errorf("reading image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.Prediction{}, fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("calling model", zap.String("url", c.url), zap.Int("bytes", body.Len()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("calling model: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("reading model response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(data)
		if resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(text), "huggingface") {
			return model.Prediction{}, ErrModelNotFound
		}
		return model.Prediction{}, &ServerError{Status: resp.StatusCode, Message: strings.TrimSpace(text)}
	}

	var p model.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Prediction{}, fmt.Errorf("decoding prediction: %w", err)
	}
	if p.Error != "" {
		return model.Prediction{}, &ServerError{Status: http.StatusOK, Message: p.Error}
	}
	return p, nil
}
