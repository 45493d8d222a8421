package main

import (
	"mime"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/app"
	"github.com/nhle/lepinet/internal/auth"
	"github.com/nhle/lepinet/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or edit your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	RunE:  withApp(runProfileShow),
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Edit your profile interactively",
	RunE:  withApp(runProfileUpdate),
}

var profilePhotoCmd = &cobra.Command{
	Use:   "photo <image>",
	Short: "Replace your profile picture",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runProfilePhoto),
}

func init() {
	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd, profilePhotoCmd)
}

func signedInUser(a *app.App) (string, error) {
	id := a.Auth.Owner()
	if id == "" {
		return "", auth.ErrNotSignedIn
	}
	return id, nil
}

func runProfileShow(cmd *cobra.Command, args []string, a *app.App) error {
	id, err := signedInUser(a)
	if err != nil {
		return err
	}
	p, err := a.Profiles.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	printProfile(cmd.OutOrStdout(), p)
	return nil
}

func runProfileUpdate(cmd *cobra.Command, args []string, a *app.App) error {
	id, err := signedInUser(a)
	if err != nil {
		return err
	}
	p, err := a.Profiles.Get(cmd.Context(), id)
	if err != nil {
		return err
	}

	u := profile.Update{
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Mobile:           p.Mobile,
		Birthday:         p.Birthday,
		Gender:           p.Gender,
		EducationalLevel: p.EducationalLevel,
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("First name").Value(&u.FirstName).Validate(validateRequired("First name")),
			huh.NewInput().Title("Last name").Value(&u.LastName).Validate(validateRequired("Last name")),
			huh.NewInput().Title("Mobile").Value(&u.Mobile),
			huh.NewInput().Title("Birthday").Placeholder("YYYY-MM-DD").Value(&u.Birthday),
			huh.NewSelect[string]().
				Title("Gender").
				Options(huh.NewOptions("", "male", "female", "other")...).
				Value(&u.Gender),
			huh.NewInput().Title("Educational level").Value(&u.EducationalLevel),
		),
	)
	if err := form.RunWithContext(cmd.Context()); err != nil {
		return err
	}

	if err := a.Profiles.Update(cmd.Context(), id, u); err != nil {
		return err
	}
	if err := a.Auth.ReloadProfile(cmd.Context()); err != nil {
		a.Logger.Debug("profile not reloaded", zap.Error(err))
	}
	success(cmd.OutOrStdout(), "Profile updated")
	return nil
}

func runProfilePhoto(cmd *cobra.Command, args []string, a *app.App) error {
	id, err := signedInUser(a)
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(args[0]))
	photoURL, err := a.Profiles.UpdatePhoto(cmd.Context(), id, contentType, f)
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Profile photo uploaded to %s", photoURL)
	return nil
}
