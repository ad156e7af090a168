package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agrilens/agrilens-go/cmd/catalog"
	"github.com/agrilens/agrilens-go/cmd/config"
	"github.com/agrilens/agrilens-go/cmd/health"
	"github.com/agrilens/agrilens-go/cmd/history"
	"github.com/agrilens/agrilens-go/cmd/predict"
	"github.com/agrilens/agrilens-go/cmd/serve"
	"github.com/agrilens/agrilens-go/cmd/version"
	"github.com/agrilens/agrilens-go/internal/app"
	"github.com/agrilens/agrilens-go/internal/buildinfo"
	"github.com/agrilens/agrilens-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "agrilens",
		Short:         "AgriLens crop recommendation and plant disease detection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	versionCmd := version.Command(build)

	rootCmd.AddCommand(
		serve.Command(settings, build),
		predict.Command(settings),
		catalog.Command(settings),
		health.Command(settings),
		history.Command(settings),
		config.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings)
	}

	return rootCmd
}

// initialize re-validates settings after flags have been applied and installs
// the configured logger.
func initialize(settings *conf.Settings) error {
	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}
	if _, err := app.InitLogging(settings); err != nil {
		return err
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Inference.BaseURL, "inference-url", viper.GetString("inference.baseurl"), "Base URL of the inference service")
	rootCmd.PersistentFlags().DurationVar(&settings.Inference.Timeout, "inference-timeout", viper.GetDuration("inference.timeout"), "Timeout for a single inference request (0 for none)")
	rootCmd.PersistentFlags().StringVar(&settings.History.Backend, "history-backend", viper.GetString("history.backend"), "History backend (auto, sqlite, mysql, postgres, supabase, none)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
