package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewSessionCmd groups the session maintenance subcommands.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Maintain browser sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete sessions unused for longer than SESSION_LIFETIME",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.sessions.Sweep(cmd.Context(), a.store)
			if err != nil {
				return oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
			}
			cmd.Printf("removed %d expired sessions\n", n)
			return nil
		},
	})
	return cmd
}
