package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/lepinet/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file interactively",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func validateRequired(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter a full URL such as https://example.supabase.co")
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	c := *cfg
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend URL").
				Placeholder("https://xyz.supabase.co").
				Value(&c.Remote.URL).
				Validate(func(s string) error {
					if err := validateRequired("Backend URL")(s); err != nil {
						return err
					}
					return validateURL(s)
				}),
			huh.NewInput().
				Title("Public API key").
				EchoMode(huh.EchoModePassword).
				Value(&c.Remote.APIKey).
				Validate(validateRequired("API key")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Hotspot function URL").
				Description("Optional, enables `lepinet explore hotspots`").
				Value(&c.Explore.HotspotFunctionURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Google Maps API key").
				Description("Optional, enables `lepinet explore geocode`").
				EchoMode(huh.EchoModePassword).
				Value(&c.Explore.GoogleMapsAPIKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Storage access key ID").
				Description("Optional, S3 credentials for photo uploads").
				Value(&c.Storage.AccessKeyID),
			huh.NewInput().
				Title("Storage secret access key").
				EchoMode(huh.EchoModePassword).
				Value(&c.Storage.SecretAccessKey),
		),
	)
	if err := form.RunWithContext(cmd.Context()); err != nil {
		return err
	}

	c.Remote.URL = strings.TrimRight(strings.TrimSpace(c.Remote.URL), "/")
	if err := model.SaveConfig(configPath, &c); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Configuration written to %s", configPath)
	return nil
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", 8)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	field(w, "File", configPath)
	field(w, "Backend", cfg.Remote.URL)
	field(w, "API key", mask(cfg.Remote.APIKey))
	field(w, "Storage", cfg.Storage.Endpoint)
	field(w, "Access key", mask(cfg.Storage.AccessKeyID))
	field(w, "Photos", cfg.Storage.PhotoBucket+", "+cfg.Storage.AvatarBucket)
	field(w, "Model", cfg.Identify.URL)
	if cfg.Identify.Mock {
		field(w, "", "mock predictions enabled")
	}
	field(w, "Hotspots", cfg.Explore.HotspotFunctionURL)
	field(w, "Maps key", mask(cfg.Explore.GoogleMapsAPIKey))
	field(w, "Database", cfg.Database.Path)
	field(w, "Log level", cfg.Log.Level)
	return nil
}
