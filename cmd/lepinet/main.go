package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/lepinet/internal/app"
	"github.com/nhle/lepinet/internal/logging"
	"github.com/nhle/lepinet/internal/model"
	"github.com/nhle/lepinet/internal/theme"
)

var (
	// Global flags
	configPath string
	envFile    string
	verbose    bool

	cfg    *model.AppConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lepinet",
	Short: "Record butterfly checklists and explore sightings",
	Long: `lepinet keeps butterfly observation checklists as local drafts, submits
them to the shared backend, identifies species from photos and shows
observation hotspots.

Drafts are stored locally and work without signing in. Submitting,
identification and exploring need an account.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := model.LoadEnvFile(envFile); err != nil {
			return err
		}

		var err error
		cfg, err = model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		logger, err = logging.New(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with backend settings")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(configCmd, authCmd, draftsCmd, entryCmd, identifyCmd,
		exploreCmd, profileCmd, checklistsCmd, viewCmd)
}

// openApp builds the services and restores the stored session. A session
// that cannot be restored leaves the user signed out.
func openApp(cmd *cobra.Command) (*app.App, error) {
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	if _, err := a.Start(cmd.Context()); err != nil {
		logger.Warn("session not restored", zap.Error(err))
	}
	return a, nil
}

// withApp runs fn with an open App and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("Error: ")+describe(err))
		stop()
		os.Exit(1)
	}
}
