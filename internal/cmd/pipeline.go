package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apistarter/apistarter/internal/config"
	"github.com/apistarter/apistarter/internal/output"
	"github.com/apistarter/apistarter/internal/server"
)

var (
	pipelineMode   string
	pipelineFormat string
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Show the request pipeline for the effective mode",
	Long: `Show every request pipeline stage in execution order (first = outermost)
and whether it is mounted under the effective configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(pipelineFormat, output.FormatTable)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(func(v *viper.Viper) {
			if pipelineMode != "" {
				v.Set("mode", pipelineMode)
			}
		})
		if err != nil {
			return err
		}

		return pipelineTable(cfg).Render(cmd.OutOrStdout(), format)
	},
}

func pipelineTable(cfg *config.Config) output.Table {
	stages := server.NewPipeline(server.Deps{Config: cfg})
	t := output.Table{Header: []string{"Order", "Stage", "Mounted", "Description"}}

	mounted := 0
	for i, stage := range stages {
		state := "skipped"
		if stage.Included(cfg) {
			state = "mounted"
			mounted++
		}
		t.Rows = append(t.Rows, []string{strconv.Itoa(i + 1), stage.Name, state, stage.Description})
	}
	t.Footer = fmt.Sprintf("%s: %d/%d mounted", cfg.Mode, mounted, len(stages))
	return t
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.Flags().StringVar(&pipelineMode, "mode", "", "override mode (development, production, test)")
	pipelineCmd.Flags().StringVarP(&pipelineFormat, "format", "f", "table", "output format (table, markdown, json, yaml)")
}
