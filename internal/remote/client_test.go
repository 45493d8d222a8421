package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lepinet/internal/retry"
)

type staticTokens string

func (s staticTokens) AccessToken(context.Context) (string, error) { return string(s), nil }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "anon-key",
		WithRetryPolicy(retry.Policy{Attempts: 3, Delay: time.Millisecond}),
	)
}

func TestInsertSendsHeadersAndBody(t *testing.T) {
	var gotPath, gotPrefer, gotAuth, gotKey string
	var gotBody []map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPrefer = r.Header.Get("Prefer")
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	})

	rows := []map[string]any{{"species_name": "Common Rose"}, {"species_name": "Blue Mormon"}}
	err := c.WithTokens(staticTokens("user-token")).Insert(context.Background(), "records", rows)
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/records", gotPath)
	assert.Equal(t, "return=minimal", gotPrefer)
	assert.Equal(t, "Bearer user-token", gotAuth)
	assert.Equal(t, "anon-key", gotKey)
	assert.Len(t, gotBody, 2)
}

func TestAnonymousRequestsUseAPIKey(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, "[]")
	})

	var out []map[string]any
	require.NoError(t, c.WithTokens(staticTokens("")).Select(context.Background(), "records", nil, &out))
	assert.Equal(t, "Bearer anon-key", gotAuth)
	assert.Empty(t, out)
}

func TestSelectEncodesQuery(t *testing.T) {
	var gotQuery url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = io.WriteString(w, `[{"checklist_id":"c1"}]`)
	})

	var out []struct {
		ChecklistID string `json:"checklist_id"`
	}
	q := url.Values{"select": {"checklist_id"}, "user_id": {"eq.u1"}}
	require.NoError(t, c.Select(context.Background(), "submissions", q, &out))

	assert.Equal(t, "eq.u1", gotQuery.Get("user_id"))
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].ChecklistID)
}

func TestUpdateUsesPatch(t *testing.T) {
	var gotMethod, gotFilter string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotFilter = r.URL.Query().Get("id")
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.Update(context.Background(), "users", url.Values{"id": {"eq.u1"}}, map[string]string{"first_name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "eq.u1", gotFilter)
}

func TestPostgRESTErrorIsMapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value","details":"Key (id) exists"}`)
	})

	err := c.Insert(context.Background(), "users", map[string]string{"id": "u1"})
	require.Error(t, err)

	var remoteErr *Error
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "users", remoteErr.Resource)
	assert.Equal(t, http.StatusConflict, remoteErr.Status)
	assert.Equal(t, "23505", remoteErr.Code)
	assert.Equal(t, "duplicate key value: Key (id) exists", remoteErr.Message)
	assert.True(t, IsConflict(err))
	assert.False(t, IsUnauthorized(err))
}

func TestAuthErrorBodyIsMapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
	})

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/v1/token", Resource: "auth"}, nil)
	var remoteErr *Error
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "invalid_grant", remoteErr.Code)
	assert.Equal(t, "Invalid login credentials", remoteErr.Message)
}

func TestRateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, c.Insert(context.Background(), "records", []int{1}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestUnavailableSelectGivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	var out []map[string]any
	err := c.Select(context.Background(), "records", url.Values{"select": {"*"}}, &out)
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestUnavailableInsertIsNotResent(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.Insert(context.Background(), "submissions", map[string]string{"checklist_id": "d1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(err))
	assert.Equal(t, int32(1), calls.Load(), "a gateway 503 may follow a committed insert")
}

func TestServerErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	})

	err := c.Insert(context.Background(), "submissions", map[string]string{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, err.Error(), "boom")
}

func TestTransportErrorHasZeroStatus(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k",
		WithRetryPolicy(retry.Policy{Attempts: 1}),
		WithTimeout(time.Second),
	)

	err := c.Insert(context.Background(), "records", []int{1})
	require.Error(t, err)
	assert.True(t, IsRemoteError(err))
	assert.Equal(t, 0, StatusOf(err))
}

func TestInvokeUsesAbsoluteURL(t *testing.T) {
	fn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/hotspots", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer fn.Close()

	c := NewClient("http://unused.invalid", "k").WithTokens(staticTokens("tok"))
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Invoke(context.Background(), fn.URL+"/functions/v1/hotspots", map[string]int{"a": 1}, &out))
	assert.True(t, out.OK)
}
