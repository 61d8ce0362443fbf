// cmd/root.go
package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"meal-scale/internal/config"
	"meal-scale/internal/foodgroup"
	"meal-scale/internal/logging"
)

func Execute() error {
	return newRootCmd().Execute()
}

// app is what the subcommands share once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "meal-scale",
		Short:         "Meal-tracking kitchen scale and its companion service",
		Long:          "meal-scale records what goes on a kitchen scale as meals, dishes and ingredients, streams the meal log to a companion, and serves the stored meals over HTTP and MCP.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/meal-scale/meal-scale.toml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(a),
		newServeCmd(a),
		newReplayCmd(a),
		newSimulateCmd(a),
	)

	return rootCmd
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(viper.New(), a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.Init(cmd.ErrOrStderr(), cfg.Log.JSON, logging.ParseLevel(cfg.Log.Level))
	return nil
}

// validated is the config for commands that act on it.
func (a *app) validated() (config.Config, error) {
	if err := a.cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return a.cfg, nil
}

func (a *app) groups() (*foodgroup.Table, error) {
	if a.cfg.Device.FoodGroups == "" {
		return foodgroup.Default(), nil
	}
	return foodgroup.Load(a.cfg.Device.FoodGroups)
}

func (a *app) location() *time.Location {
	loc, err := a.cfg.Location()
	if err != nil {
		return time.Local
	}
	return loc
}
