package checklist_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/nhle/lepinet/internal/checklist"
	"github.com/nhle/lepinet/internal/retry"
	"github.com/nhle/lepinet/internal/store"
	"github.com/nhle/lepinet/internal/testutil"
)

var t0 = time.Date(2025, time.March, 1, 6, 30, 0, 0, time.UTC)

type insertCall struct {
	collection string
	rows       any
}

type selectCall struct {
	collection string
	query      url.Values
}

// fakeRemote records every call and answers selects from canned JSON.
type fakeRemote struct {
	mu       sync.Mutex
	inserts  []insertCall
	selects  []selectCall
	failOn   map[string]error
	results  map[string]string
	onInsert func(collection string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{failOn: map[string]error{}, results: map[string]string{}}
}

func (f *fakeRemote) Insert(_ context.Context, collection string, rows any) error {
	f.mu.Lock()
	f.inserts = append(f.inserts, insertCall{collection: collection, rows: rows})
	hook := f.onInsert
	err := f.failOn[collection]
	f.mu.Unlock()

	if hook != nil {
		hook(collection)
	}
	return err
}

func (f *fakeRemote) Select(_ context.Context, collection string, query url.Values, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.selects = append(f.selects, selectCall{collection: collection, query: query})
	if err := f.failOn[collection]; err != nil {
		return err
	}
	body, ok := f.results[collection]
	if !ok {
		body = "[]"
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("fake select %s: %w", collection, err)
	}
	return nil
}

func (f *fakeRemote) insertsInto(collection string) []insertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var calls []insertCall
	for _, c := range f.inserts {
		if c.collection == collection {
			calls = append(calls, c)
		}
	}
	return calls
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestStore(t *testing.T, kv store.KeyValue, remote checklist.Remote, opts ...checklist.Option) *checklist.Store {
	t.Helper()
	if kv == nil {
		kv = testutil.NewTestStore(t)
	}
	base := []checklist.Option{
		checklist.WithClock(testclock.NewClock(t0)),
		checklist.WithLocation(time.UTC),
		checklist.WithRetryPolicy(retry.Policy{Attempts: 50, Delay: time.Millisecond}),
	}
	return checklist.NewStore(kv, remote, append(base, opts...)...)
}
