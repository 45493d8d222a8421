package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/retry"
)

// TokenSource supplies the access token of the signed-in user. An empty
// token means no user is signed in; the public key is sent instead.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Request describes a single call to the backend.
type Request struct {
	Method string

	// Path is appended to the base URL. Absolute URLs are used as-is.
	Path  string
	Query url.Values
	Body  any

	// Prefer is sent as the Prefer header (e.g. "return=minimal").
	Prefer string

	// Token overrides the token source for this request.
	Token string

	// Resource names the collection or endpoint in errors and logs.
	Resource string
}

// Client is a thin HTTP client for a PostgREST/GoTrue style backend.
// It handles key and bearer authentication, JSON marshaling, and retries
// on HTTP 429 and 503.
type Client struct {
	baseURL    string
	apiKey     string
	tokens     TokenSource
	httpClient *http.Client
	retry      retry.Policy
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetryPolicy sets the policy used for rate-limited responses.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a backend client. baseURL is the project root URL;
// apiKey is the public key sent on every request.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: retry.Policy{
			Attempts: 4,
			Delay:    time.Second,
			MaxDelay: 30 * time.Second,
			Backoff:  true,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokens returns a copy of c that authenticates as the user ts reports.
func (c *Client) WithTokens(ts TokenSource) *Client {
	clone := *c
	clone.tokens = ts
	return &clone
}

// Insert adds one row or a slice of rows to a collection in a single
// request. The backend applies the whole request in one transaction.
func (c *Client) Insert(ctx context.Context, collection string, rows any) error {
	return c.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/rest/v1/" + collection,
		Body:     rows,
		Prefer:   "return=minimal",
		Resource: collection,
	}, nil)
}

// Select reads rows from a collection. query carries PostgREST filters,
// e.g. {"select": {"*"}, "user_id": {"eq.42"}}.
func (c *Client) Select(
	ctx context.Context,
	collection string,
	query url.Values,
	out any,
) error {
	return c.Do(ctx, Request{
		Method:   http.MethodGet,
		Path:     "/rest/v1/" + collection,
		Query:    query,
		Resource: collection,
	}, out)
}

// Update patches the rows of a collection that match the filters in match.
func (c *Client) Update(
	ctx context.Context,
	collection string,
	match url.Values,
	patch any,
) error {
	return c.Do(ctx, Request{
		Method:   http.MethodPatch,
		Path:     "/rest/v1/" + collection,
		Query:    match,
		Body:     patch,
		Prefer:   "return=minimal",
		Resource: collection,
	}, nil)
}

// Invoke posts body to a serverless function and decodes the JSON reply.
func (c *Client) Invoke(ctx context.Context, functionURL string, body, out any) error {
	return c.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     functionURL,
		Body:     body,
		Resource: "function",
	}, out)
}

// Do performs req and unmarshals the JSON response into out (if non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + req.Path
	}
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}
	resource := req.Resource
	if resource == "" {
		resource = req.Path
	}

	var payload []byte
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	token := req.Token
	if token == "" && c.tokens != nil {
		t, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("getting access token: %w", err)
		}
		token = t
	}
	if token == "" {
		token = c.apiKey
	}

	var respBody []byte
	name := req.Method + " " + resource
	err := retry.Do(ctx, name, c.retry.WithLogger(c.logger), func() error {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		httpReq.Header.Set("apikey", c.apiKey)
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if req.Prefer != "" {
			httpReq.Header.Set("Prefer", req.Prefer)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return &Error{Resource: resource, Message: err.Error(), Err: err}
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return &Error{Resource: resource, Status: resp.StatusCode, Message: "reading response body", Err: readErr}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			remoteErr := newError(resource, resp.StatusCode, data)
			if retryableStatus(req.Method, resp.StatusCode) {
				return retry.Retryable(remoteErr)
			}
			return remoteErr
		}

		respBody = data
		return nil
	})
	if err != nil {
		c.logger.Debug("remote call failed", zap.String("call", name), zap.Error(err))
		return err
	}

	// No content to parse (e.g. 201 with return=minimal, or 204).
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshaling response from %s: %w", name, err)
	}
	return nil
}

func newError(resource string, status int, body []byte) *Error {
	e := &Error{Resource: resource, Status: status}

	var parsed errorBody
	if json.Unmarshal(body, &parsed) == nil {
		e.Message = parsed.message()
		e.Code = parsed.code()
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// retryableStatus reports whether a failed call may be sent again. A 429 is
// rejected before any work is done. A 503 from a gateway may arrive after the
// database committed, so it is only retried for methods that do not insert.
func retryableStatus(method string, status int) bool {
	switch status {
	case http.StatusTooManyRequests:
		return true
	case http.StatusServiceUnavailable:
		return method != http.MethodPost
	}
	return false
}
