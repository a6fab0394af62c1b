package main

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/utils"
	"bitbucket.org/mmdatafocus/books_reconcile/workflow"
	"github.com/spf13/cobra"
)

func newExcludeCmd(opts *options) *cobra.Command {
	var source, reason string
	var ids []string
	var undo bool
	cmd := &cobra.Command{
		Use:   "exclude",
		Short: "Take --ids of --source out of matching (or put them back with --undo)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required")
			}
			ids = utils.UniqueSlice(trimmed(ids))
			if len(ids) == 0 {
				return fmt.Errorf("--ids is required")
			}
			mode, err := opts.parseMode()
			if err != nil {
				return err
			}
			if err := opts.requireConfirm(mode, "EXCLUDE"); err != nil {
				return err
			}
			rt, ctx, err := newRuntime(cmd.Context(), opts, "exclude")
			if err != nil {
				return err
			}
			defer rt.close()

			src, err := rt.source(source)
			if err != nil {
				return err
			}
			if src.StatusColumn == "" {
				return fmt.Errorf("source %s has no status column", source)
			}
			refs := make([]models.RecordRef, 0, len(ids))
			for _, id := range ids {
				refs = append(refs, models.RecordRef{Source: source, ID: id})
			}
			snaps, err := rt.store.Snapshot(ctx, refs)
			if err != nil {
				return err
			}

			from, to := models.RecordStatusUnmatched, models.RecordStatusExcluded
			if undo {
				from, to = to, from
			}
			ready, refused := statusTransitions(refs, snaps, from)
			for _, line := range refused {
				fmt.Fprintln(rt.stdout, line)
			}
			if reason == "" {
				reason = "operator " + string(to)
			}
			_, err = rt.apply(ctx, []string{source}, models.ChangesFromStatus(ready, to, reason))
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source holding the rows")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "comma separated record ids")
	cmd.Flags().StringVar(&reason, "reason", "", "note stored with the change")
	cmd.Flags().BoolVar(&undo, "undo", false, "set excluded rows back to unmatched")
	return cmd
}

// statusTransitions keeps the refs whose current status is from. Matched rows are never
// touched here so their links stay paired.
func statusTransitions(refs []models.RecordRef, snaps []workflow.RecordSnapshot, from models.RecordStatus) ([]models.RecordRef, []string) {
	current := make(map[models.RecordRef]models.RecordStatus, len(snaps))
	for _, s := range snaps {
		st := s.Record.Status
		if st == "" {
			st = models.RecordStatusUnmatched
		}
		current[s.Ref] = st
	}
	var ready []models.RecordRef
	var refused []string
	for _, ref := range refs {
		st, ok := current[ref]
		switch {
		case !ok:
			refused = append(refused, fmt.Sprintf("refused[%s]=not found", ref.ID))
		case st != from:
			refused = append(refused, fmt.Sprintf("refused[%s]=status %s", ref.ID, st))
		default:
			ready = append(ready, ref)
		}
	}
	return ready, refused
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
