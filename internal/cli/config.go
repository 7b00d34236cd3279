package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/omega/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration a run would use: the defaults overlaid with the
--config file, validated against the config schema.

Examples:
  omega config
  omega config --config ./omega.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(rootOpts, cmd)
		},
	}
}

func runConfig(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts, nil)
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode config", err)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if f.IsJSON() {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return WrapExitError(ExitCommandError, "failed to encode config", err)
		}
		return f.JSON(doc, nil)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
