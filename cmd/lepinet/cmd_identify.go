package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/lepinet/internal/app"
	"github.com/nhle/lepinet/internal/auth"
	"github.com/nhle/lepinet/internal/model"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>",
	Short: "Identify the species in a JPEG photo",
	Long: `Uploads the photo, asks the identification model for the species and
records whether you accept the prediction.

With --draft an accepted prediction is added to that draft as a new
observation.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runIdentify),
}

var (
	identifyDraft  string
	identifyAccept bool
)

func init() {
	identifyCmd.Flags().StringVar(&identifyDraft, "draft", "", "add an accepted prediction to this draft")
	identifyCmd.Flags().BoolVar(&identifyAccept, "accept", false, "accept the prediction without asking")
}

func runIdentify(cmd *cobra.Command, args []string, a *app.App) error {
	if a.Identify == nil {
		return fmt.Errorf("photo storage is not configured (set storage.access_key_id and storage.secret_access_key)")
	}
	owner := a.Auth.Owner()
	if owner == "" {
		return auth.ErrNotSignedIn
	}

	var draft model.ChecklistDraft
	if identifyDraft != "" {
		d, err := resolveDraft(cmd.Context(), a, identifyDraft)
		if err != nil {
			return err
		}
		draft = d
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "Identifying…")
	res, err := a.Identify.Identify(cmd.Context(), owner, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	printPrediction(cmd.OutOrStdout(), res)

	accepted := identifyAccept
	if !accepted {
		prompt := huh.NewConfirm().
			Title(fmt.Sprintf("Is this a %s?", res.SpeciesName)).
			Affirmative("Accept").
			Negative("Reject").
			Value(&accepted)
		if err := huh.NewForm(huh.NewGroup(prompt)).RunWithContext(cmd.Context()); err != nil {
			return err
		}
	}

	a.Identify.Decide(cmd.Context(), owner, res, accepted)
	if !accepted {
		fmt.Fprintln(cmd.OutOrStdout(), "Prediction rejected.")
		return nil
	}

	if draft.ID == "" {
		success(cmd.OutOrStdout(), "Prediction accepted")
		return nil
	}
	d, err := a.Checklists.AddEntry(cmd.Context(), draft.ID, model.EntryInput{
		SpeciesName: res.SpeciesName,
		Count:       1,
	}, a.Owner())
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Added %s to %q", res.SpeciesName, d.Name)
	return nil
}
