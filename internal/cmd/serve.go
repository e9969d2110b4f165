package cmd

import (
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apistarter/apistarter/internal/app"
	apperrors "github.com/apistarter/apistarter/internal/errors"
	"github.com/apistarter/apistarter/internal/observability"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • SIGINT or SIGTERM: stop accepting connections and drain in-flight requests
  • Further signals while draining are logged and ignored
  • Drain not finished within server.shutdown_timeout: forced exit with code 1

A port that cannot be bound exits immediately with code 1.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(func(v *viper.Viper) {
			if cmd.Flags().Changed("host") {
				v.Set("server.host", serverHost)
			}
			if cmd.Flags().Changed("port") {
				v.Set("server.port", serverPort)
			}
		})
		if err != nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Invalid configuration",
				apperrors.WrapConfigInvalid(cmd.Context(), err, "configuration could not be loaded"))
		}

		logger, err := observability.NewServerLogger(cfg.App.Name, cfg.Logging.Level, cfg.Mode, cfg.App.Name)
		if err != nil {
			ExitWithCodeStderr(foundry.ExitFailure, "Failed to initialize logger",
				apperrors.WrapInternal(cmd.Context(), err, "logger could not be built"))
		}

		a, err := app.New(cfg, app.WithLogger(logger), app.WithBuildInfo(buildInfo(cfg)))
		if err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Failed to initialize server",
				apperrors.WrapInternal(cmd.Context(), err, "server could not be assembled"))
		}

		if code := a.Run(cmd.Context()); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (default all interfaces)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 3000, "server port")
}
