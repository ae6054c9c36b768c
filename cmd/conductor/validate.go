package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"smartcrm-hq/conductor/pkg/cli"
	"smartcrm-hq/conductor/pkg/config"
)

var validateFormat string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file, apply defaults and CONDUCTOR_* environment
overrides, and check every section.

On success the configured providers are listed. On failure every invalid
field is reported and the command exits with status 2.

Examples:
  # Validate a file
  conductor validate --config config.yaml

  # Machine-readable report
  conductor validate --config config.yaml --format json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateFormat, "format", "text", "output format: text, json, csv")
}

func runValidate(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(validateFormat)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if !errors.As(err, &verr) {
			return cli.NewConfigError("", err)
		}
		table := &cli.Table{Headers: []string{"FIELD", "ERROR"}}
		for _, fe := range verr.Errors {
			table.Rows = append(table.Rows, []string{fe.Field, fe.Message})
		}
		if err := formatter.FormatTo(out, table); err != nil {
			return err
		}
		return cli.NewConfigError("", fmt.Errorf("%d invalid field(s)", len(verr.Errors)))
	}

	table := &cli.Table{Headers: []string{"PROVIDER", "TRANSPORT", "MODEL", "QUOTA", "WINDOW", "ENABLED"}}
	for _, p := range cfg.Providers {
		table.Rows = append(table.Rows, []string{
			p.Name,
			p.Transport,
			p.Model,
			strconv.Itoa(p.Quota),
			p.Window.String(),
			strconv.FormatBool(!p.Disabled),
		})
	}
	if err := formatter.FormatTo(out, table); err != nil {
		return err
	}
	if validateFormat == "" || validateFormat == string(cli.FormatText) {
		fmt.Fprintf(out, "\nConfiguration valid (%d providers)\n", len(cfg.Providers))
	}
	return nil
}
