package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/lepinet/internal/auth"
	"github.com/nhle/lepinet/internal/checklist"
	"github.com/nhle/lepinet/internal/identify"
	"github.com/nhle/lepinet/internal/model"
	"github.com/nhle/lepinet/internal/remote"
	"github.com/nhle/lepinet/internal/theme"
)

// describe turns an error into a message with a hint where one helps.
func describe(err error) string {
	switch {
	case errors.Is(err, model.ErrRemoteNotConfigured):
		return err.Error() + " (run `lepinet config init` or set LEPINET_REMOTE_URL)"
	case errors.Is(err, auth.ErrNotSignedIn):
		return "not signed in (run `lepinet auth login`)"
	case remote.IsUnauthorized(err):
		return "the backend rejected the session (run `lepinet auth login` again)"
	case errors.Is(err, checklist.ErrEmptyChecklist):
		return "add at least one species before submitting"
	}
	return err.Error()
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func field(w io.Writer, label, value string) {
	fmt.Fprintln(w, theme.LabelStyle.Render(label)+value)
}

func formatPoint(p *model.GeoPoint) string {
	if p == nil {
		return "-"
	}
	s := fmt.Sprintf("%.5f, %.5f", p.Latitude, p.Longitude)
	if p.Accuracy != nil {
		s += fmt.Sprintf(" (±%sm)", humanize.Ftoa(*p.Accuracy))
	}
	return s
}

func printDraft(w io.Writer, d model.ChecklistDraft) {
	fmt.Fprintln(w, theme.HeaderStyle.Render(d.Name)+" "+theme.StatusStyle(string(d.Status)).Render(string(d.Status)))
	field(w, "ID", d.ID)
	field(w, "Created", humanize.Time(d.CreatedAt))
	field(w, "Species", humanize.Comma(int64(len(d.Entries))))
	if len(d.Entries) == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render("No observations yet. Add one with `lepinet entry add`."))
		return
	}

	var b strings.Builder
	for i, e := range d.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-28s x%-4d %-26s %s",
			short(e.ID), e.SpeciesName, e.Count, formatPoint(e.Location), humanize.Time(e.ObservedAt))
	}
	fmt.Fprintln(w, theme.PanelStyle.Render(b.String()))
}

func printDrafts(w io.Writer, drafts []model.ChecklistDraft) {
	if len(drafts) == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render("No drafts."))
		return
	}
	for _, d := range drafts {
		fmt.Fprintf(w, "%s  %-30s %s species  %s\n",
			short(d.ID), d.Name, humanize.Comma(int64(len(d.Entries))), humanize.Time(d.CreatedAt))
	}
}

func printItems(w io.Writer, items []checklist.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render("No checklists."))
		return
	}
	status := lipgloss.NewStyle().Width(11)
	for _, it := range items {
		fmt.Fprintf(w, "%s %s  %-30s %s records  %s\n",
			status.Render(theme.StatusStyle(string(it.Status)).Render(string(it.Status))),
			short(it.ID), it.Name, humanize.Comma(int64(it.RecordCount)), humanize.Time(it.Date))
	}
}

func printSubmission(w io.Writer, s checklist.Submission) {
	fmt.Fprintln(w, theme.HeaderStyle.Render(s.ChecklistName)+" "+theme.StatusStyle("submitted").Render("submitted"))
	field(w, "ID", s.ChecklistID)
	field(w, "Submitted", s.SubmittedDate+" "+s.SubmittedTime)
	field(w, "Records", humanize.Comma(int64(len(s.Records))))

	var b strings.Builder
	for i, r := range s.Records {
		if i > 0 {
			b.WriteByte('\n')
		}
		loc := "-"
		if r.Latitude != nil && r.Longitude != nil {
			loc = fmt.Sprintf("%.5f, %.5f", *r.Latitude, *r.Longitude)
		}
		fmt.Fprintf(&b, "%-28s x%-4d %-22s %s %s", r.SpeciesName, r.SpeciesCount, loc, r.RecordedDate, r.RecordedTime)
	}
	if b.Len() > 0 {
		fmt.Fprintln(w, theme.PanelStyle.Render(b.String()))
	}
}

func printPrediction(w io.Writer, r identify.Result) {
	pct := fmt.Sprintf("%.0f%%", r.Confidence*100)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", lipgloss.NewStyle().Bold(true).Render(r.SpeciesName))
	fmt.Fprintf(&b, "%s %s\n", theme.LabelStyle.Render("Species ID"), r.SpeciesID)
	fmt.Fprintf(&b, "%s %s", theme.LabelStyle.Render("Confidence"), theme.ConfidenceStyle(r.Confidence).Render(pct))
	fmt.Fprintln(w, theme.PanelStyle.Render(b.String()))
}

func printProfile(w io.Writer, p model.Profile) {
	fmt.Fprintln(w, theme.HeaderStyle.Render(p.DisplayName()))
	field(w, "Email", p.Email)
	field(w, "Mobile", p.Mobile)
	field(w, "Birthday", p.Birthday)
	field(w, "Gender", p.Gender)
	field(w, "Education", p.EducationalLevel)
	if p.ProfilePhotoURL != nil {
		field(w, "Photo", *p.ProfilePhotoURL)
	}
	if p.UpdatedAt != nil {
		field(w, "Updated", humanize.Time(*p.UpdatedAt))
	}
}

func printAuth(w io.Writer, snap auth.Snapshot) {
	state := theme.AuthStyle(snap.State.Authenticated()).Render(snap.State.String())
	field(w, "State", state)
	if snap.Session != nil {
		field(w, "Email", snap.Session.User.Email)
		field(w, "Expires", humanize.Time(snap.Session.Expiry()))
	}
	if snap.Profile != nil {
		field(w, "Name", snap.Profile.DisplayName())
	}
	if snap.Err != nil {
		field(w, "Last error", theme.ErrorStyle.Render(snap.Err.Error()))
	}
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, theme.SuccessStyle.Render(fmt.Sprintf(format, args...)))
}
