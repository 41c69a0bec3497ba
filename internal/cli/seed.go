package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/smartworking/pkg/auth"
	"github.com/psantana5/smartworking/pkg/notify"
)

type seedOptions struct {
	email     string
	firstName string
	lastName  string
	password  string
}

func newSeedManagerCmd(opts *rootOptions) *cobra.Command {
	seed := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed-manager",
		Short: "Create the manager account new employees report to",
		Long: `Creates a manager account unless one already exists for the email.
Self-registered employees are assigned to the first manager created.
The password may also be given through SMARTWORKING_SEED_PASSWORD.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed.password == "" {
				seed.password = os.Getenv("SMARTWORKING_SEED_PASSWORD")
			}
			if seed.email == "" || seed.password == "" {
				return errors.New("--email and --password are required")
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := newLogger(cfg)

			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			accounts := auth.NewService(s, nil, notify.Nop{}, logger)

			user, created, err := accounts.SeedManager(ctx, seed.email, seed.firstName, seed.lastName, seed.password)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created manager %s (%s)\n", user.Email, user.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "manager %s already exists (%s)\n", user.Email, user.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&seed.email, "email", "", "manager email")
	cmd.Flags().StringVar(&seed.firstName, "first-name", "", "manager first name")
	cmd.Flags().StringVar(&seed.lastName, "last-name", "", "manager last name")
	cmd.Flags().StringVar(&seed.password, "password", "", "initial password (min 8 characters)")
	return cmd
}

