package main

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/books_reconcile/config"
	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	"bitbucket.org/mmdatafocus/books_reconcile/workflow"
	"github.com/spf13/cobra"
)

func newRestoreBackupCmd(opts *options) *cobra.Command {
	var backupName string
	cmd := &cobra.Command{
		Use:   "restore-backup",
		Short: "Put back every row saved under --backup-name (needs --confirm=RESTORE, otherwise only lists the backup)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backupName = strings.TrimSpace(backupName)
			if backupName == "" {
				return fmt.Errorf("--backup-name is required")
			}
			confirm := strings.TrimSpace(opts.confirm)
			if confirm != "" && confirm != "RESTORE" {
				return fmt.Errorf("%w: set --confirm=RESTORE", utils.ErrorConfirmRequired)
			}
			rt, ctx, err := newRuntime(cmd.Context(), opts, "restore-backup")
			if err != nil {
				return err
			}
			defer rt.close()

			rows, err := rt.store.LoadBackup(ctx, backupName)
			if err != nil {
				return err
			}
			counts := backupCounts(rows)
			for _, source := range utils.SortedKeys(counts) {
				fmt.Fprintf(rt.stdout, "backup_rows[%s]=%d\n", source, counts[source])
			}
			fmt.Fprintf(rt.stdout, "backup_name=%s\nbackup_rows=%d\n", backupName, len(rows))
			if confirm == "" {
				fmt.Fprintln(rt.stdout, "restored=0")
				return nil
			}

			lock := workflow.NewSourceLock(utils.SortedKeys(counts))
			release, err := utils.ObtainRunLock(ctx, lock.Name(), runLockTTL, "restore.go", "restore-backup")
			if err != nil {
				return err
			}
			defer release()

			restored, err := rt.store.WithLock(lock).RestoreBackup(ctx, backupName)
			if err != nil {
				config.LogError(rt.logger, "restore.go", "restore-backup", "restore failed", backupName, err)
				return err
			}
			fmt.Fprintf(rt.stdout, "restored=%d\n", restored)
			return nil
		},
	}
	cmd.Flags().StringVar(&backupName, "backup-name", "", "backup to restore, as printed by a write-mode run")
	return cmd
}

func backupCounts(rows []models.ReconciliationBackup) map[string]int {
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.SourceTable]++
	}
	return counts
}
