package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Change is one unit of work for the change applier.
type Change struct {
	Kind    ChangeKind      `json:"kind"`
	Ref     RecordRef       `json:"ref"`
	LinkTo  *RecordRef      `json:"link_to,omitempty"`
	Status  RecordStatus    `json:"status,omitempty"`
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason,omitempty"`
}

// Touched lists every row the change writes.
func (c Change) Touched() []RecordRef {
	if c.Kind == ChangeKindLink && c.LinkTo != nil {
		return []RecordRef{c.Ref, *c.LinkTo}
	}
	return []RecordRef{c.Ref}
}

// ChangesFromDecisions turns link decisions into link changes. Other actions are review
// outcomes and produce nothing.
func ChangesFromDecisions(decisions []ReconciliationDecision, leftSource, rightSource string) []Change {
	changes := make([]Change, 0, len(decisions))
	for _, d := range decisions {
		if d.Action != DecisionActionLink || d.RightID == "" {
			continue
		}
		right := RecordRef{Source: rightSource, ID: d.RightID}
		changes = append(changes, Change{
			Kind:   ChangeKindLink,
			Ref:    RecordRef{Source: leftSource, ID: d.LeftID},
			LinkTo: &right,
			Status: RecordStatusMatched,
			Reason: d.Reason,
		})
	}
	return changes
}

// ChangesFromStatus sets every ref to status. Used by exclude and its undo.
func ChangesFromStatus(refs []RecordRef, status RecordStatus, reason string) []Change {
	changes := make([]Change, 0, len(refs))
	for _, ref := range refs {
		changes = append(changes, Change{Kind: ChangeKindSetStatus, Ref: ref, Status: status, Reason: reason})
	}
	return changes
}

func ChangesFromDeletes(deletes []DeleteInstruction) []Change {
	changes := make([]Change, 0, len(deletes))
	for _, d := range deletes {
		changes = append(changes, Change{Kind: ChangeKindDelete, Ref: d.Ref, Reason: d.Reason})
	}
	return changes
}

// ChangesFromBalanceCorrections overwrites declared balances with computed ones for mismatched rows.
// Only called on explicit operator request.
func ChangesFromBalanceCorrections(source string, checkpoints []RunningBalanceCheckpoint) []Change {
	var changes []Change
	for _, cp := range checkpoints {
		if !cp.Mismatch {
			continue
		}
		changes = append(changes, Change{
			Kind:    ChangeKindSetDeclaredBalance,
			Ref:     RecordRef{Source: source, ID: cp.RecordID},
			Balance: cp.ComputedBalance,
			Reason:  "declared balance " + cp.DeclaredBalance.StringFixed(2) + " != computed " + cp.ComputedBalance.StringFixed(2),
		})
	}
	return changes
}

type SourceTotals struct {
	Source   string          `json:"source"`
	Count    int64           `json:"count"`
	Sum      decimal.Decimal `json:"sum"`
	Matched  int64           `json:"matched"`
	Excluded int64           `json:"excluded"`
}

type Totals struct {
	Sources  []SourceTotals  `json:"sources"`
	Count    int64           `json:"count"`
	Sum      decimal.Decimal `json:"sum"`
	Matched  int64           `json:"matched"`
	Excluded int64           `json:"excluded"`
}

// NewTotals sorts per-source rows by name and fills the grand totals.
func NewTotals(sources []SourceTotals) Totals {
	sorted := make([]SourceTotals, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })
	t := Totals{Sources: sorted, Sum: decimal.Zero}
	for _, s := range sorted {
		t.Count += s.Count
		t.Sum = t.Sum.Add(s.Sum)
		t.Matched += s.Matched
		t.Excluded += s.Excluded
	}
	return t
}

func (t Totals) Equal(o Totals) bool {
	if t.Count != o.Count || !t.Sum.Equal(o.Sum) || t.Matched != o.Matched || t.Excluded != o.Excluded {
		return false
	}
	if len(t.Sources) != len(o.Sources) {
		return false
	}
	for i := range t.Sources {
		a, b := t.Sources[i], o.Sources[i]
		if a.Source != b.Source || a.Count != b.Count || !a.Sum.Equal(b.Sum) || a.Matched != b.Matched || a.Excluded != b.Excluded {
			return false
		}
	}
	return true
}

type ApplyReport struct {
	RunID              string    `json:"run_id"`
	Mode               Mode      `json:"mode"`
	Before             Totals    `json:"before"`
	After              Totals    `json:"after"`
	Planned            int       `json:"planned"`
	Applied            int       `json:"applied"`
	Skipped            int       `json:"skipped"`
	StatementsExecuted int       `json:"statements_executed"`
	BackupName         string    `json:"backup_name,omitempty"`
	BackupRows         int       `json:"backup_rows"`
	RolledBack         bool      `json:"rolled_back"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}
