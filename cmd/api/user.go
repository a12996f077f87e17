package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewUserCmd groups the user management subcommands.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateLocalCmd())
	cmd.AddCommand(newUserForceLogoutCmd())
	return cmd
}

func newUserCreateLocalCmd() *cobra.Command {
	var email, username, password string
	var admin bool
	cmd := &cobra.Command{
		Use:   "create-local",
		Short: "Create a local (password) account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.userService().CreateLocalUser(cmd.Context(), email, username, password, admin)
			if err != nil {
				return oops.Code("USER_CREATE_FAILED").With("email", email).Wrap(err)
			}
			cmd.Printf("created local user %d (%s)\n", id, email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserForceLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force-logout <user-id>",
		Short: "Invalidate every session of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return oops.Code("INVALID_ARGUMENT").With("user_id", args[0]).Wrap(err)
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			version, removed, err := a.userService().ForceLogout(cmd.Context(), id)
			if err != nil {
				return oops.Code("FORCE_LOGOUT_FAILED").With("user_id", id).Wrap(err)
			}
			cmd.Printf("user %d: session version %d, %d sessions removed\n", id, version, removed)
			return nil
		},
	}
}
