package main

import (
	"github.com/spf13/cobra"

	"bosun/pkg/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp("bosun-cli")
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			return database.ApplySchema(cmd.Context(), a.db, a.logger)
		},
	}
}
