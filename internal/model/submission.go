package model

import "time"

// Remote collection names.
const (
	CollectionSubmissions = "submissions"
	CollectionRecords     = "records"
	CollectionUsers       = "users"
	CollectionAILogs      = "ai_logs"
)

// Date and time layouts used by the remote tables.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// SubmissionRow is a row of the "submissions" collection.
type SubmissionRow struct {
	ChecklistID   string `json:"checklist_id"`
	UserID        string `json:"user_id"`
	SubmittedDate string `json:"submitted_date"`
	SubmittedTime string `json:"submitted_time"`
	ChecklistName string `json:"checklist_name"`
}

// RecordRow is a row of the "records" collection. Latitude and longitude are
// null when the observation carried no location.
type RecordRow struct {
	SpeciesName  string   `json:"species_name"`
	SpeciesCount int      `json:"species_count"`
	RecordedDate string   `json:"recorded_date"`
	RecordedTime string   `json:"recorded_time"`
	Latitude     *float64 `json:"recorded_location_latitude"`
	Longitude    *float64 `json:"recorded_location_longitude"`
	ChecklistID  string   `json:"checklist_id"`
}

// RecordCount is the aggregate PostgREST returns for an embedded count.
type RecordCount struct {
	Count int `json:"count"`
}

// SubmissionSummary is a submission as listed in the checklist overview.
type SubmissionSummary struct {
	SubmissionRow
	Records []RecordCount `json:"records"`
}

// RecordCount returns the number of records attached to the submission.
func (s SubmissionSummary) RecordCount() int {
	if len(s.Records) == 0 {
		return 0
	}
	return s.Records[0].Count
}

// SubmittedAt parses the submission date and time in loc.
func (s SubmissionRow) SubmittedAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, s.SubmittedDate+" "+s.SubmittedTime, loc)
}

// SplitTimestamp formats t as separate date and time components.
func SplitTimestamp(t time.Time) (date, clock string) {
	return t.Format(DateLayout), t.Format(TimeLayout)
}

// NewSubmissionRow builds the parent row for a draft submitted at now.
func NewSubmissionRow(d ChecklistDraft, userID string, now time.Time) SubmissionRow {
	date, clock := SplitTimestamp(now)
	return SubmissionRow{
		ChecklistID:   d.ID,
		UserID:        userID,
		SubmittedDate: date,
		SubmittedTime: clock,
		ChecklistName: d.Name,
	}
}

// NewRecordRows maps every entry of d to a record row, converting
// observation times into loc.
func NewRecordRows(d ChecklistDraft, loc *time.Location) []RecordRow {
	rows := make([]RecordRow, 0, len(d.Entries))
	for _, e := range d.Entries {
		date, clock := SplitTimestamp(e.ObservedAt.In(loc))
		row := RecordRow{
			SpeciesName:  e.SpeciesName,
			SpeciesCount: e.Count,
			RecordedDate: date,
			RecordedTime: clock,
			ChecklistID:  d.ID,
		}
		if e.Location != nil {
			lat, lng := e.Location.Latitude, e.Location.Longitude
			row.Latitude = &lat
			row.Longitude = &lng
		}
		rows = append(rows, row)
	}
	return rows
}
