package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/awsutils/internal/config"
	"github.com/yairfalse/awsutils/internal/emitter"
)

var queriesFormat string

// queriesCmd represents the queries command
var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Print the AWS Config queries public-ips runs",
	Long: `Print the AWS Config advanced queries used by public-ips, after the
config file and CONFIG_QUERIES overrides are applied.`,
	Example: `  awsutils queries
  CONFIG_QUERIES='{"EIP":"SELECT ..."}' awsutils queries -o yaml`,
	RunE: runQueries,
}

func init() {
	rootCmd.AddCommand(queriesCmd)
	queriesCmd.Flags().StringVarP(&queriesFormat, "format", "o", "json", "Output format: json, yaml")
}

func runQueries(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printQueries(cmd, cfg, queriesFormat)
}

func printQueries(cmd *cobra.Command, cfg *config.Config, format string) error {
	f, err := emitter.ParseFormat(format)
	if err != nil {
		return err
	}
	return emitter.NewWriterEmitter(cmd.OutOrStdout(), f).Emit(cmd.Context(), "queries", cfg.Inventory.Queries)
}
