package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	jujuerrors "github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/nhle/lepinet/internal/app"
	"github.com/nhle/lepinet/internal/model"
)

var draftsCmd = &cobra.Command{
	Use:     "drafts",
	Aliases: []string{"draft"},
	Short:   "Manage local checklist drafts",
	Long: `Drafts live on this machine until they are submitted. Drafts created
while signed out belong to the anonymous owner and cannot be submitted.

Draft and entry IDs may be abbreviated to any unique prefix.`,
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts, newest first",
	RunE:  withApp(runDraftsList),
}

var draftsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Start a new checklist",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withApp(runDraftsCreate),
}

var draftsShowCmd = &cobra.Command{
	Use:   "show <draft>",
	Short: "Show a draft and its observations",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runDraftsShow),
}

var draftsRenameCmd = &cobra.Command{
	Use:   "rename <draft> <name>",
	Short: "Rename a draft",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runDraftsRename),
}

var draftsDeleteCmd = &cobra.Command{
	Use:   "delete <draft>",
	Short: "Delete a draft",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runDraftsDelete),
}

var draftsSubmitCmd = &cobra.Command{
	Use:   "submit <draft>",
	Short: "Upload a draft to the backend and remove it locally",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runDraftsSubmit),
}

var draftsOwnersCmd = &cobra.Command{
	Use:   "owners",
	Short: "List the owners that have drafts on this machine",
	RunE:  withApp(runDraftsOwners),
}

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Add, change or remove observations in a draft",
}

var entryAddCmd = &cobra.Command{
	Use:   "add <draft>",
	Short: "Add an observation",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runEntryAdd),
}

var entryUpdateCmd = &cobra.Command{
	Use:   "update <draft> <entry>",
	Short: "Change an observation",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runEntryUpdate),
}

var entryRemoveCmd = &cobra.Command{
	Use:   "remove <draft> <entry>",
	Short: "Remove an observation",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runEntryRemove),
}

var (
	yes bool

	entrySpecies  string
	entryCount    int
	entryLat      float64
	entryLng      float64
	entryAccuracy float64
)

func init() {
	draftsDeleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	draftsCmd.AddCommand(draftsListCmd, draftsCreateCmd, draftsShowCmd, draftsRenameCmd,
		draftsDeleteCmd, draftsSubmitCmd, draftsOwnersCmd)

	for _, c := range []*cobra.Command{entryAddCmd, entryUpdateCmd} {
		c.Flags().StringVarP(&entrySpecies, "species", "s", "", "species name")
		c.Flags().IntVarP(&entryCount, "count", "n", 1, "number of individuals")
		c.Flags().Float64Var(&entryLat, "lat", 0, "latitude")
		c.Flags().Float64Var(&entryLng, "lng", 0, "longitude")
		c.Flags().Float64Var(&entryAccuracy, "accuracy", 0, "location accuracy in metres")
		c.MarkFlagsRequiredTogether("lat", "lng")
	}
	_ = entryUpdateCmd.MarkFlagRequired("species")
	entryCmd.AddCommand(entryAddCmd, entryUpdateCmd, entryRemoveCmd)
}

// resolveDraft finds the owner's draft whose ID equals or starts with ref.
func resolveDraft(ctx context.Context, a *app.App, ref string) (model.ChecklistDraft, error) {
	drafts, err := a.Checklists.List(ctx, a.Owner())
	if err != nil {
		return model.ChecklistDraft{}, err
	}
	var matches []model.ChecklistDraft
	for _, d := range drafts {
		if d.ID == ref {
			return d, nil
		}
		if strings.HasPrefix(d.ID, ref) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return model.ChecklistDraft{}, jujuerrors.NotFoundf("draft %s", ref)
	case 1:
		return matches[0], nil
	}
	return model.ChecklistDraft{}, fmt.Errorf("draft prefix %q is ambiguous", ref)
}

func resolveEntry(d model.ChecklistDraft, ref string) (string, error) {
	var match string
	for _, e := range d.Entries {
		if e.ID == ref {
			return e.ID, nil
		}
		if strings.HasPrefix(e.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("entry prefix %q is ambiguous", ref)
			}
			match = e.ID
		}
	}
	if match == "" {
		return "", jujuerrors.NotFoundf("entry %s in draft %s", ref, d.ID)
	}
	return match, nil
}

func entryInput(cmd *cobra.Command) model.EntryInput {
	in := model.EntryInput{SpeciesName: entrySpecies, Count: entryCount}
	if cmd.Flags().Changed("lat") {
		in.Location = &model.GeoPoint{Latitude: entryLat, Longitude: entryLng}
		if cmd.Flags().Changed("accuracy") {
			acc := entryAccuracy
			in.Location.Accuracy = &acc
		}
	}
	return in
}

func runDraftsList(cmd *cobra.Command, args []string, a *app.App) error {
	drafts, err := a.Checklists.List(cmd.Context(), a.Owner())
	if err != nil {
		return err
	}
	printDrafts(cmd.OutOrStdout(), drafts)
	return nil
}

func runDraftsCreate(cmd *cobra.Command, args []string, a *app.App) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	d, err := a.Checklists.Create(cmd.Context(), name, a.Owner())
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Created %q (%s)", d.Name, short(d.ID))
	return nil
}

func runDraftsShow(cmd *cobra.Command, args []string, a *app.App) error {
	d, err := resolveDraft(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	printDraft(cmd.OutOrStdout(), d)
	return nil
}

func runDraftsRename(cmd *cobra.Command, args []string, a *app.App) error {
	d, err := resolveDraft(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	d, err = a.Checklists.Rename(cmd.Context(), d.ID, args[1], a.Owner())
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Renamed to %q", d.Name)
	return nil
}

func runDraftsDelete(cmd *cobra.Command, args []string, a *app.App) error {
	d, err := resolveDraft(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	if !yes {
		confirmed := false
		prompt := huh.NewConfirm().
			Title(fmt.Sprintf("Delete %q with %d observations?", d.Name, len(d.Entries))).
			Value(&confirmed)
		if err := huh.NewForm(huh.NewGroup(prompt)).RunWithContext(cmd.Context()); err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
	}
	if err := a.Checklists.Delete(cmd.Context(), d.ID, a.Owner()); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Deleted %q", d.Name)
	return nil
}

func runDraftsSubmit(cmd *cobra.Command, args []string, a *app.App) error {
	d, err := resolveDraft(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	if err := a.Checklists.Submit(cmd.Context(), d.ID, a.Owner()); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Submitted %q with %d species", d.Name, len(d.Entries))
	return nil
}

func runDraftsOwners(cmd *cobra.Command, args []string, a *app.App) error {
	owners, err := a.Checklists.Owners(cmd.Context())
	if err != nil {
		return err
	}
	for _, o := range owners {
		fmt.Fprintln(cmd.OutOrStdout(), o)
	}
	return nil
}

func runEntryAdd(cmd *cobra.Command, args []string, a *app.App) error {
	d, err := resolveDraft(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	if entrySpecies == "" {
		prompt := huh.NewInput().Title("Species").Value(&entrySpecies).Validate(validateRequired("Species"))
		if err := huh.NewForm(huh.NewGroup(prompt)).RunWithContext(cmd.Context()); err != nil {
			return err
		}
	}
	d, err = a.Checklists.AddEntry(cmd.Context(), d.ID, entryInput(cmd), a.Owner())
	if err != nil {
		return err
	}
	printDraft(cmd.OutOrStdout(), d)
	return nil
}

func runEntryUpdate(cmd *cobra.Command, args []string, a *app.App) error {
	d, err := resolveDraft(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	entryID, err := resolveEntry(d, args[1])
	if err != nil {
		return err
	}
	d, err = a.Checklists.UpdateEntry(cmd.Context(), d.ID, entryID, entryInput(cmd), a.Owner())
	if err != nil {
		return err
	}
	printDraft(cmd.OutOrStdout(), d)
	return nil
}

func runEntryRemove(cmd *cobra.Command, args []string, a *app.App) error {
	d, err := resolveDraft(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	entryID, err := resolveEntry(d, args[1])
	if err != nil {
		return err
	}
	d, err = a.Checklists.RemoveEntry(cmd.Context(), d.ID, entryID, a.Owner())
	if err != nil {
		return err
	}
	printDraft(cmd.OutOrStdout(), d)
	return nil
}
