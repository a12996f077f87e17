package main

import (
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		Long:  `Create the users, sessions, log_entries, patrons and settings tables if they do not exist.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	cmd.Println("Running migrations...")
	if err := a.ensureSchema(cmd.Context()); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}
