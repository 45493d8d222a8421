package checklist

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	jujuerrors "github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/lepinet/internal/model"
)

// Filter selects which checklists the overview returns.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterDraft     Filter = "draft"
	FilterSubmitted Filter = "submitted"
)

// ParseFilter converts a user supplied filter name. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterDraft, FilterSubmitted:
		return f, nil
	}
	return "", jujuerrors.NotValidf("filter %q", s)
}

// OverviewQuery narrows the overview.
type OverviewQuery struct {
	Filter Filter
	Search string
}

// Item is one row of the overview: a local draft or a remote submission.
type Item struct {
	ID          string
	Name        string
	Status      model.DraftStatus
	Date        time.Time
	RecordCount int
}

const summaryColumns = "checklist_id,checklist_name,submitted_date,submitted_time,records(count)"

// Overview lists owner's local drafts together with the checklists owner has
// submitted, newest first. The anonymous owner only sees local drafts.
func (s *Store) Overview(ctx context.Context, owner string, q OverviewQuery) ([]Item, error) {
	if q.Filter == "" {
		q.Filter = FilterAll
	}

	var (
		drafts      []model.ChecklistDraft
		submissions []model.SubmissionSummary
	)

	needRemote := q.Filter != FilterDraft && owner != "" && owner != AnonymousOwner
	if needRemote && s.remote == nil {
		return nil, errNoRemote
	}

	g, gctx := errgroup.WithContext(ctx)
	if q.Filter != FilterSubmitted {
		g.Go(func() error {
			var err error
			drafts, err = s.List(gctx, owner)
			return err
		})
	}
	if needRemote {
		g.Go(func() error {
			query := url.Values{
				"select":  {summaryColumns},
				"user_id": {"eq." + owner},
				"order":   {"submitted_date.desc,submitted_time.desc"},
			}
			if err := s.remote.Select(gctx, model.CollectionSubmissions, query, &submissions); err != nil {
				return fmt.Errorf("loading submissions: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(drafts)+len(submissions))
	for _, d := range drafts {
		items = append(items, Item{
			ID:          d.ID,
			Name:        d.Name,
			Status:      d.Status,
			Date:        d.CreatedAt,
			RecordCount: len(d.Entries),
		})
	}
	for _, sub := range submissions {
		at, err := sub.SubmittedAt(s.loc)
		if err != nil {
			return nil, fmt.Errorf("submission %s: %w", sub.ChecklistID, err)
		}
		items = append(items, Item{
			ID:          sub.ChecklistID,
			Name:        sub.ChecklistName,
			Status:      model.DraftStatusSubmitted,
			Date:        at,
			RecordCount: sub.RecordCount(),
		})
	}

	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		items = slices.DeleteFunc(items, func(it Item) bool {
			return !strings.Contains(strings.ToLower(it.Name), search)
		})
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		return b.Date.Compare(a.Date)
	})
	return items, nil
}

// Submission is a submitted checklist with its records.
type Submission struct {
	model.SubmissionRow
	Records []model.RecordRow
}

// View loads a submitted checklist of owner from the backend.
func (s *Store) View(ctx context.Context, checklistID, owner string) (Submission, error) {
	if s.remote == nil {
		return Submission{}, errNoRemote
	}

	var (
		rows    []model.SubmissionRow
		records []model.RecordRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query := url.Values{
			"select":       {"*"},
			"checklist_id": {"eq." + checklistID},
			"user_id":      {"eq." + owner},
		}
		return s.remote.Select(gctx, model.CollectionSubmissions, query, &rows)
	})
	g.Go(func() error {
		query := url.Values{
			"select":       {"*"},
			"checklist_id": {"eq." + checklistID},
			"order":        {"recorded_date.asc,recorded_time.asc"},
		}
		return s.remote.Select(gctx, model.CollectionRecords, query, &records)
	})
	if err := g.Wait(); err != nil {
		return Submission{}, fmt.Errorf("loading checklist %s: %w", checklistID, err)
	}

	if len(rows) == 0 {
		return Submission{}, jujuerrors.NotFoundf("checklist %s", checklistID)
	}
	if records == nil {
		records = []model.RecordRow{}
	}
	return Submission{SubmissionRow: rows[0], Records: records}, nil
}
