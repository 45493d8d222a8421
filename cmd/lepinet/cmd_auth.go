package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/lepinet/internal/app"
	"github.com/nhle/lepinet/internal/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, sign up and manage the session",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE:  withApp(runAuthLogin),
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	RunE:  withApp(runAuthSignup),
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE:  withApp(runAuthLogout),
}

var authResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Email a password reset link",
	RunE:  withApp(runAuthReset),
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who is signed in",
	RunE:  withApp(runAuthStatus),
}

var authEmail string

func init() {
	for _, c := range []*cobra.Command{authLoginCmd, authSignupCmd, authResetCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "account email")
	}
	authCmd.AddCommand(authLoginCmd, authSignupCmd, authLogoutCmd, authResetCmd, authStatusCmd)
}

func emailInput() *huh.Input {
	return huh.NewInput().
		Title("Email").
		Value(&authEmail).
		Validate(validateRequired("Email"))
}

func passwordInput(password *string) *huh.Input {
	return huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(password).
		Validate(validateRequired("Password"))
}

func requireSignedOut(a *app.App) error {
	if snap := a.Auth.Current(); snap.State.Authenticated() {
		return fmt.Errorf("already signed in as %s (run `lepinet auth logout` first)", snap.Session.User.Email)
	}
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string, a *app.App) error {
	if err := requireSignedOut(a); err != nil {
		return err
	}

	var password string
	fields := []huh.Field{passwordInput(&password)}
	if authEmail == "" {
		fields = append([]huh.Field{emailInput()}, fields...)
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).RunWithContext(cmd.Context()); err != nil {
		return err
	}

	snap, err := a.Auth.SignIn(cmd.Context(), authEmail, password)
	if err != nil {
		return err
	}
	a.Refresher.Start()

	name := snap.Session.User.Email
	if snap.Profile != nil {
		name = snap.Profile.DisplayName()
	}
	success(cmd.OutOrStdout(), "Signed in as %s", name)
	if snap.State == auth.AuthenticatedNoProfile {
		fmt.Fprintln(cmd.OutOrStdout(), "Your profile is not available yet. Try `lepinet profile show` later.")
	}
	return nil
}

func runAuthSignup(cmd *cobra.Command, args []string, a *app.App) error {
	if err := requireSignedOut(a); err != nil {
		return err
	}

	var password, confirm, firstName, lastName string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("First name").Value(&firstName).Validate(validateRequired("First name")),
			huh.NewInput().Title("Last name").Value(&lastName).Validate(validateRequired("Last name")),
			emailInput(),
			passwordInput(&password),
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != password {
						return fmt.Errorf("passwords do not match")
					}
					return nil
				}),
		),
	)
	if err := form.RunWithContext(cmd.Context()); err != nil {
		return err
	}

	res, err := a.Auth.SignUp(cmd.Context(), authEmail, password, firstName, lastName)
	if err != nil {
		return err
	}
	if res.Session == nil {
		success(cmd.OutOrStdout(), "Account created. Check %s for a confirmation link, then sign in.", authEmail)
		return nil
	}
	success(cmd.OutOrStdout(), "Account created and signed in")
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string, a *app.App) error {
	if err := a.Auth.SignOut(cmd.Context()); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runAuthReset(cmd *cobra.Command, args []string, a *app.App) error {
	if authEmail == "" {
		if err := huh.NewForm(huh.NewGroup(emailInput())).RunWithContext(cmd.Context()); err != nil {
			return err
		}
	}
	if err := a.Auth.ResetPassword(cmd.Context(), authEmail); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Password reset link sent to %s", authEmail)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string, a *app.App) error {
	printAuth(cmd.OutOrStdout(), a.Auth.Current())
	return nil
}
