package main

import (
	"fmt"
	"os"
)

// reconcile matches, validates and cleans financial records across the bookkeeping tables.
//
// Dry-run (default): report only, nothing is written
//
//	go run ./cmd/reconcile match --left=banking_transactions --right=receipts --from=2019-01-01 --to=2019-12-31
//
// Write the links (backup + one transaction):
//
//	go run ./cmd/reconcile match --left=banking_transactions --right=receipts --mode=write
//
// Running balance of one account:
//
//	go run ./cmd/reconcile balance --source=banking_transactions --account=0228362 --opening=1000.00
//
// Delete duplicate rows, keeping the lowest id of every group:
//
//	go run ./cmd/reconcile cleanup-duplicates --source=receipts --keep=lowest-id --mode=write --confirm=DELETE
//
// Undo a write run:
//
//	go run ./cmd/reconcile restore-backup --backup-name=recon_20240506T070809_abcdef12 --confirm=RESTORE
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
