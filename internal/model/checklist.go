package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DraftStatus is the lifecycle state of a checklist. The only transition is
// draft -> submitted.
type DraftStatus string

// Checklist status constants.
const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusSubmitted DraftStatus = "submitted"
)

// DefaultDraftName replaces an empty checklist name.
const DefaultDraftName = "Untitled Checklist"

// GeoPoint is a position captured with an observation. It is copied by value
// into entries and never shared.
type GeoPoint struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// EntryInput holds the user-editable fields of an observation.
type EntryInput struct {
	SpeciesName string
	Count       int
	Location    *GeoPoint
}

// ChecklistEntry is a single species observation within a draft.
type ChecklistEntry struct {
	ID          string
	SpeciesName string
	Count       int
	Location    *GeoPoint
	ObservedAt  time.Time
}

// ChecklistDraft is a locally stored checklist that has not been submitted.
type ChecklistDraft struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Status    DraftStatus
	Entries   []ChecklistEntry
}

// FindEntry returns the index of the entry with the given ID, or -1.
func (d *ChecklistDraft) FindEntry(entryID string) int {
	for i := range d.Entries {
		if d.Entries[i].ID == entryID {
			return i
		}
	}
	return -1
}

// entryJSON is the stored representation of an entry. Timestamps are Unix
// milliseconds so that blobs written by the mobile client stay readable.
type entryJSON struct {
	ID          string    `json:"id"`
	SpeciesName string    `json:"speciesName"`
	Count       int       `json:"count"`
	Location    *GeoPoint `json:"location,omitempty"`
	ObservedAt  int64     `json:"observedAt"`
}

type draftJSON struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedAt int64            `json:"createdAt"`
	Status    DraftStatus      `json:"status"`
	Entries   []ChecklistEntry `json:"entries"`
}

// MarshalJSON implements json.Marshaler.
func (e ChecklistEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		ID:          e.ID,
		SpeciesName: e.SpeciesName,
		Count:       e.Count,
		Location:    e.Location,
		ObservedAt:  e.ObservedAt.UnixMilli(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ChecklistEntry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == "" {
		return fmt.Errorf("entry without id")
	}
	*e = ChecklistEntry{
		ID:          raw.ID,
		SpeciesName: raw.SpeciesName,
		Count:       raw.Count,
		Location:    raw.Location,
		ObservedAt:  time.UnixMilli(raw.ObservedAt),
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d ChecklistDraft) MarshalJSON() ([]byte, error) {
	entries := d.Entries
	if entries == nil {
		entries = []ChecklistEntry{}
	}
	return json.Marshal(draftJSON{
		ID:        d.ID,
		Name:      d.Name,
		CreatedAt: d.CreatedAt.UnixMilli(),
		Status:    d.Status,
		Entries:   entries,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *ChecklistDraft) UnmarshalJSON(data []byte) error {
	var raw draftJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == "" {
		return fmt.Errorf("draft without id")
	}
	switch raw.Status {
	case DraftStatusDraft, DraftStatusSubmitted:
	default:
		return fmt.Errorf("draft %s: unknown status %q", raw.ID, raw.Status)
	}
	if raw.Entries == nil {
		raw.Entries = []ChecklistEntry{}
	}
	*d = ChecklistDraft{
		ID:        raw.ID,
		Name:      raw.Name,
		CreatedAt: time.UnixMilli(raw.CreatedAt),
		Status:    raw.Status,
		Entries:   raw.Entries,
	}
	return nil
}
