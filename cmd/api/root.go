package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command of the auth service CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service-auth",
		Short: "Login, SSO and session service",
		Long: `service-auth runs the login endpoints (Discourse SSO, Patreon OAuth and
local accounts) and provides operator commands for users and sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewSessionCmd())
	cmd.AddCommand(NewPatreonCmd())

	return cmd
}
