package cli

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	var validate bool
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			if validate {
				return cfg.Validate()
			}
			return nil
		},
	}
	printCmd.Flags().BoolVar(&validate, "validate", false, "also fail when the configuration cannot serve traffic")

	configCmd.AddCommand(printCmd)
	return configCmd
}
