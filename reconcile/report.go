package reconcile

import (
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/shopspring/decimal"
)

type DuplicateGroup struct {
	Source  string                   `json:"source"`
	Key     string                   `json:"key"`
	Records []models.FinancialRecord `json:"records"`
}

func (g DuplicateGroup) IDs() []string {
	ids := make([]string, 0, len(g.Records))
	for _, r := range g.Records {
		ids = append(ids, r.ID)
	}
	return ids
}

type Summary struct {
	LeftCount         int             `json:"left_count"`
	RightCount        int             `json:"right_count"`
	Linked            int             `json:"linked"`
	NoMatch           int             `json:"no_match"`
	Orphans           int             `json:"orphans"`
	FlaggedDuplicates int             `json:"flagged_duplicates"`
	Ambiguous         int             `json:"ambiguous"`
	DuplicateGroups   int             `json:"duplicate_groups"`
	BalanceMismatches int             `json:"balance_mismatches"`
	Skipped           int             `json:"skipped"`
	AlreadyReconciled int             `json:"already_reconciled"`
	LinkedAmount      decimal.Decimal `json:"linked_amount"`
	UnresolvedAmount  decimal.Decimal `json:"unresolved_amount"`
}

// Report is everything one run produced. It is read-only output; nothing here touches the store.
type Report struct {
	RunID             string                            `json:"run_id"`
	GeneratedAt       time.Time                         `json:"generated_at"`
	LeftSource        string                            `json:"left_source"`
	RightSource       string                            `json:"right_source,omitempty"`
	Decisions         []models.ReconciliationDecision   `json:"decisions"`
	Unresolved        []models.ReconciliationDecision   `json:"unresolved"`
	Ambiguous         []models.ReconciliationDecision   `json:"ambiguous"`
	Duplicates        []DuplicateGroup                  `json:"duplicates"`
	Checkpoints       []models.RunningBalanceCheckpoint `json:"checkpoints,omitempty"`
	BalanceMismatches []models.RunningBalanceCheckpoint `json:"balance_mismatches"`
	Skipped           []models.SkippedRecord            `json:"skipped"`
	Summary           Summary                           `json:"summary"`
}

func (r *Report) setDecisions(decisions []models.ReconciliationDecision, left []models.FinancialRecord) {
	amounts := make(map[string]decimal.Decimal, len(left))
	for _, l := range left {
		amounts[l.ID] = l.Magnitude()
	}
	r.Decisions = decisions
	r.Unresolved = nil
	r.Ambiguous = nil
	for _, d := range decisions {
		if d.Ambiguous {
			r.Ambiguous = append(r.Ambiguous, d)
		}
		switch d.Action {
		case models.DecisionActionLink:
			r.Summary.Linked++
			r.Summary.LinkedAmount = r.Summary.LinkedAmount.Add(amounts[d.LeftID])
			continue
		case models.DecisionActionNoMatch:
			r.Summary.NoMatch++
		case models.DecisionActionFlagOrphan:
			r.Summary.Orphans++
		case models.DecisionActionFlagDuplicate:
			r.Summary.FlaggedDuplicates++
		}
		r.Unresolved = append(r.Unresolved, d)
		r.Summary.UnresolvedAmount = r.Summary.UnresolvedAmount.Add(amounts[d.LeftID])
	}
}

func (r *Report) setCheckpoints(checkpoints []models.RunningBalanceCheckpoint) {
	r.Checkpoints = checkpoints
	r.BalanceMismatches = Mismatches(checkpoints)
}

func (r *Report) finish() {
	r.Summary.Ambiguous = len(r.Ambiguous)
	r.Summary.DuplicateGroups = len(r.Duplicates)
	r.Summary.BalanceMismatches = len(r.BalanceMismatches)
	r.Summary.Skipped = len(r.Skipped)
}

// Changes is the write plan for the link decisions.
func (r *Report) Changes() []models.Change {
	return models.ChangesFromDecisions(r.Decisions, r.LeftSource, r.RightSource)
}

// DuplicateRecords flattens the duplicate groups of one source.
func (r *Report) DuplicateRecords(source string) [][]models.FinancialRecord {
	var out [][]models.FinancialRecord
	for _, g := range r.Duplicates {
		if g.Source == source {
			out = append(out, g.Records)
		}
	}
	return out
}

// Findings converts review items into rows for reconciliation_reports.
func (r *Report) Findings(correlationID string) []models.ReconciliationReport {
	var out []models.ReconciliationReport
	add := func(t models.FindingType, source, recordID, details string) {
		out = append(out, models.ReconciliationReport{
			RunId:         r.RunID,
			FindingType:   t,
			SourceTable:   source,
			RecordId:      recordID,
			Details:       details,
			CorrelationId: correlationID,
		})
	}
	for _, cp := range r.BalanceMismatches {
		add(models.FindingTypeBalanceMismatch, r.LeftSource, cp.RecordID,
			fmt.Sprintf("declared=%s computed=%s delta=%s", cp.DeclaredBalance.StringFixed(2), cp.ComputedBalance.StringFixed(2), cp.Delta.StringFixed(2)))
	}
	for _, g := range r.Duplicates {
		for _, rec := range g.Records {
			add(models.FindingTypeDuplicateGroup, g.Source, rec.ID,
				fmt.Sprintf("key=%s members=%s", g.Key, strings.Join(g.IDs(), ",")))
		}
	}
	for _, d := range r.Ambiguous {
		add(models.FindingTypeAmbiguousMatch, r.LeftSource, d.LeftID, d.Reason)
	}
	for _, d := range r.Unresolved {
		if d.Action == models.DecisionActionFlagOrphan {
			add(models.FindingTypeOrphan, r.LeftSource, d.LeftID, d.Reason)
		}
	}
	return out
}
