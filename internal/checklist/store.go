// Package checklist owns the lifecycle of locally stored checklist drafts and
// their submission to the backend.
//
// Drafts are partitioned by owner. Each owner's drafts are stored as one JSON
// array under a single key, newest first. Every mutation reads the whole
// collection, changes it in memory and writes it back with a compare-and-swap
// on the version it read; a conflicting writer causes the cycle to run again.
package checklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	jujuerrors "github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/model"
	"github.com/nhle/lepinet/internal/retry"
	"github.com/nhle/lepinet/internal/store"
)

const (
	keyPrefix = "lepinet:drafts:"

	// AnonymousOwner is the bucket used when nobody is signed in.
	AnonymousOwner = "anon"
)

// DraftsKey returns the storage key for owner's drafts.
func DraftsKey(owner string) string {
	if owner == "" {
		owner = AnonymousOwner
	}
	return keyPrefix + owner
}

// OwnerFromKey is the inverse of DraftsKey.
func OwnerFromKey(key string) (string, bool) {
	owner, ok := strings.CutPrefix(key, keyPrefix)
	if !ok || owner == "" {
		return "", false
	}
	return owner, true
}

// Remote is the part of the backend the draft store talks to.
type Remote interface {
	Insert(ctx context.Context, collection string, rows any) error
	Select(ctx context.Context, collection string, query url.Values, out any) error
}

// Store manages checklist drafts.
type Store struct {
	kv     store.KeyValue
	remote Remote
	clock  clock.Clock
	loc    *time.Location
	newID  func() string
	retry  retry.Policy
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for creation and submission times.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLocation sets the time zone used to split timestamps into the date
// and time columns of remote rows.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithRetryPolicy sets the policy for version conflicts.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.retry = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a draft store over kv. remote may be nil for purely local
// use; Submit, Overview and View then fail.
func NewStore(kv store.KeyValue, remote Remote, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		remote: remote,
		clock:  clock.WallClock,
		loc:    time.Local,
		newID:  uuid.NewString,
		retry:  retry.Default,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds an empty draft to the front of owner's collection.
func (s *Store) Create(ctx context.Context, name, owner string) (model.ChecklistDraft, error) {
	draft := model.ChecklistDraft{
		ID:        s.newID(),
		Name:      normalizeName(name),
		CreatedAt: s.now(),
		Status:    model.DraftStatusDraft,
		Entries:   []model.ChecklistEntry{},
	}

	err := s.mutate(ctx, owner, func(drafts []model.ChecklistDraft) ([]model.ChecklistDraft, error) {
		return append([]model.ChecklistDraft{draft}, drafts...), nil
	})
	if err != nil {
		return model.ChecklistDraft{}, fmt.Errorf("creating draft: %w", err)
	}

	s.logger.Debug("draft created", zap.String("owner", DraftsKey(owner)), zap.String("draft_id", draft.ID))
	return draft, nil
}

// List returns owner's drafts, newest first. An owner without stored data
// has no drafts.
func (s *Store) List(ctx context.Context, owner string) ([]model.ChecklistDraft, error) {
	drafts, _, err := s.load(ctx, DraftsKey(owner))
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

// Get returns a single draft.
func (s *Store) Get(ctx context.Context, draftID, owner string) (model.ChecklistDraft, error) {
	drafts, err := s.List(ctx, owner)
	if err != nil {
		return model.ChecklistDraft{}, err
	}
	i := findDraft(drafts, draftID)
	if i < 0 {
		return model.ChecklistDraft{}, draftNotFound(draftID)
	}
	return drafts[i], nil
}

// AddEntry appends a new observation to a draft.
func (s *Store) AddEntry(
	ctx context.Context,
	draftID string,
	input model.EntryInput,
	owner string,
) (model.ChecklistDraft, error) {
	input, err := validateEntry(input)
	if err != nil {
		return model.ChecklistDraft{}, err
	}

	entry := model.ChecklistEntry{
		ID:          s.newID(),
		SpeciesName: input.SpeciesName,
		Count:       input.Count,
		Location:    copyLocation(input.Location),
		ObservedAt:  s.now(),
	}

	return s.mutateDraft(ctx, draftID, owner, func(d *model.ChecklistDraft) error {
		d.Entries = append(d.Entries, entry)
		return nil
	})
}

// UpdateEntry replaces the species, count and location of an entry. The
// entry keeps its id and observation time.
func (s *Store) UpdateEntry(
	ctx context.Context,
	draftID, entryID string,
	input model.EntryInput,
	owner string,
) (model.ChecklistDraft, error) {
	input, err := validateEntry(input)
	if err != nil {
		return model.ChecklistDraft{}, err
	}

	return s.mutateDraft(ctx, draftID, owner, func(d *model.ChecklistDraft) error {
		i := d.FindEntry(entryID)
		if i < 0 {
			return jujuerrors.NotFoundf("entry %s in draft %s", entryID, draftID)
		}
		e := &d.Entries[i]
		e.SpeciesName = input.SpeciesName
		e.Count = input.Count
		e.Location = copyLocation(input.Location)
		return nil
	})
}

// RemoveEntry deletes an entry from a draft. Removing an entry that does not
// exist leaves the draft unchanged.
func (s *Store) RemoveEntry(ctx context.Context, draftID, entryID, owner string) (model.ChecklistDraft, error) {
	return s.mutateDraft(ctx, draftID, owner, func(d *model.ChecklistDraft) error {
		if i := d.FindEntry(entryID); i >= 0 {
			d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
		}
		return nil
	})
}

// Rename changes a draft's name. An empty name becomes the default.
func (s *Store) Rename(ctx context.Context, draftID, name, owner string) (model.ChecklistDraft, error) {
	name = normalizeName(name)
	return s.mutateDraft(ctx, draftID, owner, func(d *model.ChecklistDraft) error {
		d.Name = name
		return nil
	})
}

// Delete removes a draft from the local collection. It has no effect on the
// backend and deleting a missing draft is not an error.
func (s *Store) Delete(ctx context.Context, draftID, owner string) error {
	err := s.mutate(ctx, owner, func(drafts []model.ChecklistDraft) ([]model.ChecklistDraft, error) {
		if i := findDraft(drafts, draftID); i >= 0 {
			drafts = append(drafts[:i], drafts[i+1:]...)
		}
		return drafts, nil
	})
	if err != nil {
		return fmt.Errorf("deleting draft %s: %w", draftID, err)
	}
	return nil
}

// Owners lists the owners that have a stored draft collection.
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing draft owners: %w", err)
	}
	owners := make([]string, 0, len(keys))
	for _, k := range keys {
		if owner, ok := OwnerFromKey(k); ok {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

// now is truncated to the millisecond precision drafts are stored with.
func (s *Store) now() time.Time {
	return s.clock.Now().Truncate(time.Millisecond).In(s.loc)
}

func (s *Store) mutateDraft(
	ctx context.Context,
	draftID, owner string,
	fn func(d *model.ChecklistDraft) error,
) (model.ChecklistDraft, error) {
	var updated model.ChecklistDraft
	err := s.mutate(ctx, owner, func(drafts []model.ChecklistDraft) ([]model.ChecklistDraft, error) {
		i := findDraft(drafts, draftID)
		if i < 0 {
			return nil, draftNotFound(draftID)
		}
		if err := fn(&drafts[i]); err != nil {
			return nil, err
		}
		updated = drafts[i]
		return drafts, nil
	})
	if err != nil {
		return model.ChecklistDraft{}, err
	}
	return updated, nil
}

// mutate runs one read-modify-write cycle over owner's collection, repeating
// it while another writer got there first.
func (s *Store) mutate(
	ctx context.Context,
	owner string,
	fn func([]model.ChecklistDraft) ([]model.ChecklistDraft, error),
) error {
	key := DraftsKey(owner)
	policy := s.retry.WithLogger(s.logger.With(zap.String("owner", key)))

	return retry.Do(ctx, "update "+key, policy, func() error {
		drafts, version, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		next, err := fn(drafts)
		if err != nil {
			return err
		}
		err = s.save(ctx, key, next, version)
		if errors.Is(err, store.ErrVersionConflict) {
			return retry.Retryable(err)
		}
		return err
	})
}

func (s *Store) load(ctx context.Context, key string) ([]model.ChecklistDraft, int64, error) {
	blob, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", key, err)
	}
	if blob == nil {
		return []model.ChecklistDraft{}, 0, nil
	}

	var drafts []model.ChecklistDraft
	if err := json.Unmarshal([]byte(blob.Value), &drafts); err != nil {
		return nil, 0, &DecodeError{Key: key, Err: err}
	}
	if drafts == nil {
		drafts = []model.ChecklistDraft{}
	}
	return drafts, blob.Version, nil
}

func (s *Store) save(ctx context.Context, key string, drafts []model.ChecklistDraft, version int64) error {
	if drafts == nil {
		drafts = []model.ChecklistDraft{}
	}
	data, err := json.Marshal(drafts)
	if err != nil {
		return fmt.Errorf("encoding drafts: %w", err)
	}
	if _, err := s.kv.CompareAndSwap(ctx, key, string(data), version); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func findDraft(drafts []model.ChecklistDraft, id string) int {
	for i := range drafts {
		if drafts[i].ID == id {
			return i
		}
	}
	return -1
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.DefaultDraftName
	}
	return name
}

func validateEntry(in model.EntryInput) (model.EntryInput, error) {
	in.SpeciesName = strings.TrimSpace(in.SpeciesName)
	if in.SpeciesName == "" {
		return in, jujuerrors.NotValidf("empty species name")
	}
	if in.Count < 1 {
		return in, jujuerrors.NotValidf("count %d", in.Count)
	}
	return in, nil
}

func copyLocation(p *model.GeoPoint) *model.GeoPoint {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Accuracy != nil {
		acc := *p.Accuracy
		cp.Accuracy = &acc
	}
	return &cp
}
