package cmd

import (
	"github.com/spf13/cobra"

	"github.com/apistarter/apistarter/internal/output"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(configFormat, output.FormatYAML)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		return output.Encode(cmd.OutOrStdout(), format, cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format (yaml, json)")
}
