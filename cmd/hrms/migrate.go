package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			storage, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			out := cmd.OutOrStdout()
			if statusOnly {
				status, err := storage.MigrationStatus(ctx, logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "current version: %s\n", status.CurrentVersion)
				fmt.Fprintf(out, "applied: %d, pending: %d\n", len(status.Applied), len(status.Pending))
				return nil
			}

			applied, err := storage.Migrate(ctx, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %d migration(s)\n", applied)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "print migration status without applying anything")
	return cmd
}
