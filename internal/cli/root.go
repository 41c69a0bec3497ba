package cli

import (
	"github.com/spf13/cobra"

	"github.com/psantana5/smartworking/pkg/config"
)

// Version is set at build time
var Version = "dev"

type rootOptions struct {
	cfgFile string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.cfgFile)
}

// NewRootCommand builds the smartworking command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "smartworking",
		Short: "Smart working request service",
		Long: `smartworking runs the HTTP API employees use to request smart working days
and managers use to approve or reject them, plus maintenance commands.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "",
		"config file (default is ./smartworking.yaml or /etc/smartworking/smartworking.yaml)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSeedManagerCmd(opts),
		newRequestsCmd(opts),
		newConfigCmd(opts),
		newCertCmd(),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}
