package main

import (
	"fmt"

	"bitbucket.org/mmdatafocus/books_reconcile/config"
	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the reconciliation_backups, reconciliation_reports and reconciliation_runs tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := config.ConnectDatabaseWithRetry(connectAttempts)
			if err != nil {
				return err
			}
			defer config.CloseDatabase()
			if err := models.MigrateTable(db); err != nil {
				config.LogError(config.GetLogger(), "migrate.go", "migrate", "auto migrate", nil, err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrated=true")
			return nil
		},
	}
}
