package checklist

import (
	"context"
	"errors"
	"fmt"

	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/model"
)

var errNoRemote = errors.New("no backend configured")

// Submit sends a draft to the backend and removes it locally. Entries added
// or changed while the inserts run are not part of the submission and stay
// in the local draft.
//
// The submission row is inserted first and the records follow in a single
// batched insert. If the records insert fails the submission row stays on
// the backend and the local draft is kept, so the user can retry. Once the
// first insert starts, cancelling ctx no longer stops the operation.
func (s *Store) Submit(ctx context.Context, draftID, owner string) error {
	if owner == "" || owner == AnonymousOwner {
		return jujuerrors.NotValidf("submission without a signed-in user")
	}
	if s.remote == nil {
		return errNoRemote
	}

	draft, err := s.Get(ctx, draftID, owner)
	if err != nil {
		return err
	}
	if len(draft.Entries) == 0 {
		return fmt.Errorf("submitting draft %s: %w", draftID, ErrEmptyChecklist)
	}

	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(
		zap.String("owner", owner),
		zap.String("draft_id", draft.ID),
		zap.Int("records", len(draft.Entries)),
	)

	submission := model.NewSubmissionRow(draft, owner, s.now())
	if err := s.remote.Insert(ctx, model.CollectionSubmissions, submission); err != nil {
		log.Warn("submission insert failed", zap.Error(err))
		return fmt.Errorf("inserting submission %s: %w", draft.ID, err)
	}
	log.Debug("submission inserted")

	records := model.NewRecordRows(draft, s.loc)
	if err := s.remote.Insert(ctx, model.CollectionRecords, records); err != nil {
		log.Error("records insert failed, submission left without records", zap.Error(err))
		return fmt.Errorf("inserting records for %s: %w", draft.ID, err)
	}
	log.Debug("records inserted")

	kept, err := s.removeSubmitted(ctx, draft, owner)
	if err != nil {
		return fmt.Errorf("removing submitted draft: %w", err)
	}
	if kept > 0 {
		log.Warn("draft changed during submission, unsubmitted entries kept", zap.Int("kept", kept))
	}

	log.Info("checklist submitted", zap.String("status", string(model.DraftStatusSubmitted)))
	return nil
}

// removeSubmitted drops the submitted entries from the stored draft. The draft
// itself goes away only when nothing else was added or changed while the
// inserts ran; otherwise it stays with the remaining entries and the count of
// those is returned.
func (s *Store) removeSubmitted(ctx context.Context, submitted model.ChecklistDraft, owner string) (int, error) {
	kept := 0
	err := s.mutate(ctx, owner, func(drafts []model.ChecklistDraft) ([]model.ChecklistDraft, error) {
		kept = 0
		i := findDraft(drafts, submitted.ID)
		if i < 0 {
			return drafts, nil
		}
		var rest []model.ChecklistEntry
		for _, e := range drafts[i].Entries {
			if j := submitted.FindEntry(e.ID); j < 0 || !sameEntry(submitted.Entries[j], e) {
				rest = append(rest, e)
			}
		}
		if len(rest) == 0 {
			return append(drafts[:i], drafts[i+1:]...), nil
		}
		drafts[i].Entries = rest
		kept = len(rest)
		return drafts, nil
	})
	return kept, err
}

func sameEntry(a, b model.ChecklistEntry) bool {
	if a.SpeciesName != b.SpeciesName || a.Count != b.Count || !a.ObservedAt.Equal(b.ObservedAt) {
		return false
	}
	if a.Location == nil || b.Location == nil {
		return a.Location == b.Location
	}
	if a.Location.Latitude != b.Location.Latitude || a.Location.Longitude != b.Location.Longitude {
		return false
	}
	if a.Location.Accuracy == nil || b.Location.Accuracy == nil {
		return a.Location.Accuracy == b.Location.Accuracy
	}
	return *a.Location.Accuracy == *b.Location.Accuracy
}
