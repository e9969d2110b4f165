package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apistarter/apistarter/internal/config"
	"github.com/apistarter/apistarter/internal/server/handlers"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "HTTP API service with an ordered request pipeline and graceful shutdown",
	Long: `HTTP API service with an ordered request pipeline and graceful shutdown.

Configuration is read from an optional config.yaml and environment variables
(APP_ENV, PORT, RATE_LIMIT_POINTS, ...). Use the subcommands to run or inspect it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to subcommands.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Disable global telemetry early so config loading never emits metrics
	// to stdout. serve installs its own system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default searches %v)", config.ConfigSearchPaths()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then the environment, then overrides applied by the caller.
func loadConfig(overrides func(v *viper.Viper)) (*config.Config, error) {
	v, err := config.New()
	if err != nil {
		return nil, err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		for _, path := range config.ConfigSearchPaths() {
			v.AddConfigPath(path)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		// It's OK if config file doesn't exist, we have defaults
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if verbose {
		v.Set("logging.level", "debug")
	}
	if overrides != nil {
		overrides(v)
	}

	return config.Load(v)
}

// buildInfo is the identity served by the HTTP handlers.
func buildInfo(cfg *config.Config) handlers.BuildInfo {
	return handlers.BuildInfo{
		Name:      cfg.App.Name,
		Version:   versionInfo.Version,
		Commit:    versionInfo.Commit,
		BuildDate: versionInfo.BuildDate,
	}
}
