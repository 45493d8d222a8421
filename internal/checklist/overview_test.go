package checklist_test

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lepinet/internal/checklist"
	"github.com/nhle/lepinet/internal/model"
	"github.com/nhle/lepinet/internal/testutil"
)

const submissionsJSON = `[
	{"checklist_id":"sub-1","checklist_name":"Garden count","submitted_date":"2025-03-02","submitted_time":"09:00:00","records":[{"count":4}]},
	{"checklist_id":"sub-2","checklist_name":"Morning Survey","submitted_date":"2025-02-27","submitted_time":"07:15:00","records":[{"count":1}]}
]`

func overviewFixture(t *testing.T) (*checklist.Store, *fakeRemote) {
	t.Helper()
	ctx := context.Background()
	fake := newFakeRemote()
	fake.results[model.CollectionSubmissions] = submissionsJSON

	clk := testclock.NewClock(t0)
	s := newTestStore(t, testutil.NewTestStore(t), fake, checklist.WithClock(clk))

	_, err := s.Create(ctx, "Evening survey", "user-42")
	require.NoError(t, err)
	clk.Advance(48 * time.Hour)
	d, err := s.Create(ctx, "Riverside", "user-42")
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, d.ID, model.EntryInput{SpeciesName: "Common Rose", Count: 2}, "user-42")
	require.NoError(t, err)
	return s, fake
}

func names(items []checklist.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}

func TestOverviewMergesNewestFirst(t *testing.T) {
	s, fake := overviewFixture(t)

	items, err := s.Overview(context.Background(), "user-42", checklist.OverviewQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Riverside", "Garden count", "Evening survey", "Morning Survey"}, names(items))

	assert.Equal(t, model.DraftStatusDraft, items[0].Status)
	assert.Equal(t, 1, items[0].RecordCount)
	assert.Equal(t, model.DraftStatusSubmitted, items[1].Status)
	assert.Equal(t, 4, items[1].RecordCount)

	require.Len(t, fake.selects, 1)
	q := fake.selects[0].query
	assert.Equal(t, "eq.user-42", q.Get("user_id"))
	assert.Contains(t, q.Get("select"), "records(count)")
}

func TestOverviewFilterAndSearch(t *testing.T) {
	s, _ := overviewFixture(t)
	ctx := context.Background()

	drafts, err := s.Overview(ctx, "user-42", checklist.OverviewQuery{Filter: checklist.FilterDraft})
	require.NoError(t, err)
	assert.Equal(t, []string{"Riverside", "Evening survey"}, names(drafts))

	submitted, err := s.Overview(ctx, "user-42", checklist.OverviewQuery{Filter: checklist.FilterSubmitted})
	require.NoError(t, err)
	assert.Equal(t, []string{"Garden count", "Morning Survey"}, names(submitted))

	found, err := s.Overview(ctx, "user-42", checklist.OverviewQuery{Search: "SURVEY"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Evening survey", "Morning Survey"}, names(found))
}

func TestOverviewAnonymousSkipsRemote(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	s := newTestStore(t, nil, fake)

	_, err := s.Create(ctx, "Offline", "")
	require.NoError(t, err)

	items, err := s.Overview(ctx, "", checklist.OverviewQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Offline"}, names(items))
	assert.Empty(t, fake.selects)
}

func TestParseFilter(t *testing.T) {
	f, err := checklist.ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, checklist.FilterAll, f)

	f, err = checklist.ParseFilter(" Submitted ")
	require.NoError(t, err)
	assert.Equal(t, checklist.FilterSubmitted, f)

	_, err = checklist.ParseFilter("archived")
	assert.True(t, checklist.IsValidation(err))
}

func TestView(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	fake.results[model.CollectionSubmissions] = `[{"checklist_id":"sub-1","user_id":"user-42","checklist_name":"Garden count","submitted_date":"2025-03-02","submitted_time":"09:00:00"}]`
	fake.results[model.CollectionRecords] = `[{"species_name":"Common Rose","species_count":2,"recorded_date":"2025-03-02","recorded_time":"08:55:00","recorded_location_latitude":7.1,"recorded_location_longitude":80.2,"checklist_id":"sub-1"}]`
	s := newTestStore(t, nil, fake)

	sub, err := s.View(ctx, "sub-1", "user-42")
	require.NoError(t, err)
	assert.Equal(t, "Garden count", sub.ChecklistName)
	require.Len(t, sub.Records, 1)
	assert.Equal(t, "Common Rose", sub.Records[0].SpeciesName)
	assert.InDelta(t, 7.1, *sub.Records[0].Latitude, 1e-9)
}

func TestViewNotFound(t *testing.T) {
	s := newTestStore(t, nil, newFakeRemote())

	_, err := s.View(context.Background(), "missing", "user-42")
	assert.True(t, checklist.IsNotFound(err))
}
