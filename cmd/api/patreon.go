package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/entity"
)

// NewPatreonCmd groups the patreon settings subcommands.
func NewPatreonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patreon",
		Short: "Manage patreon login settings",
	}
	cmd.AddCommand(newPatreonShowCmd())
	cmd.AddCommand(newPatreonSetCmd())
	return cmd
}

func newPatreonShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored patreon tier settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			ps, err := a.settings.PatreonSettings(cmd.Context())
			if err != nil {
				return oops.Code("SETTINGS_READ_FAILED").Wrap(err)
			}
			cmd.Printf("devbuilds reward: %q\nvip reward: %q\nmin pledge cents: %d\n",
				ps.DevBuildsRewardID, ps.VIPRewardID, ps.MinPledgeCents)
			return nil
		},
	}
}

func newPatreonSetCmd() *cobra.Command {
	var ps entity.PatreonSettings
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the patreon tier settings used for login entitlement",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.settings.SavePatreonSettings(cmd.Context(), ps); err != nil {
				return oops.Code("SETTINGS_WRITE_FAILED").Wrap(err)
			}
			cmd.Println("patreon settings saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&ps.DevBuildsRewardID, "devbuilds-reward", "", "reward id of the DevBuilds tier")
	cmd.Flags().StringVar(&ps.VIPRewardID, "vip-reward", "", "reward id of the VIP tier")
	cmd.Flags().IntVar(&ps.MinPledgeCents, "min-pledge-cents", 0, "pledge granting entitlement regardless of reward")
	return cmd
}
