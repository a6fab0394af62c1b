package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
)

type ResolveOptions struct {
	Order     models.LeftOrder
	Ambiguity models.AmbiguityPolicy
}

func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{Order: models.LeftOrderAmountDesc, Ambiguity: models.AmbiguityPolicyLowestID}
}

// Resolve assigns each left record at most one right record, and each right record to at
// most one left record. Decisions come back in processing order, one per distinct left id.
func Resolve(left []models.FinancialRecord, candidatesByLeft map[string][]models.MatchCandidate, opts ResolveOptions) []models.ReconciliationDecision {
	if !opts.Order.IsValid() {
		opts.Order = models.LeftOrderAmountDesc
	}
	if !opts.Ambiguity.IsValid() {
		opts.Ambiguity = models.AmbiguityPolicyLowestID
	}

	ordered := OrderLeft(left, opts.Order)
	consumed := map[string]bool{}
	decided := map[string]bool{}
	decisions := make([]models.ReconciliationDecision, 0, len(ordered))

	for _, l := range ordered {
		if l.ID == "" || decided[l.ID] {
			continue
		}
		decided[l.ID] = true

		cands := candidatesByLeft[l.ID]
		if len(cands) == 0 {
			decisions = append(decisions, models.ReconciliationDecision{
				LeftID: l.ID,
				Action: models.DecisionActionFlagOrphan,
				Reason: "no candidate within tolerance and window",
			})
			continue
		}

		available := unclaimed(cands, consumed)
		if len(available) == 0 {
			decisions = append(decisions, models.ReconciliationDecision{
				LeftID: l.ID,
				Action: models.DecisionActionNoMatch,
				Reason: fmt.Sprintf("all %d candidates already linked", len(cands)),
			})
			continue
		}

		best := available[0]
		ambiguous := len(available) > 1 && sameRank(best, available[1])
		if ambiguous && opts.Ambiguity == models.AmbiguityPolicyFlag {
			decisions = append(decisions, models.ReconciliationDecision{
				LeftID:     l.ID,
				Action:     models.DecisionActionNoMatch,
				Confidence: best.CombinedScore,
				Ambiguous:  true,
				Reason:     "tied candidates " + tiedIDs(available),
			})
			continue
		}

		consumed[best.RightID] = true
		reason := fmt.Sprintf("amount_delta=%s date_delta=%d description_score=%.4f", best.AmountDelta.String(), best.DateDelta, best.DescriptionScore)
		if ambiguous {
			reason += "; tied candidates " + tiedIDs(available) + ", picked lowest id"
		}
		decisions = append(decisions, models.ReconciliationDecision{
			LeftID:     l.ID,
			RightID:    best.RightID,
			Action:     models.DecisionActionLink,
			Confidence: best.CombinedScore,
			Ambiguous:  ambiguous,
			Reason:     reason,
		})
	}
	return decisions
}

func unclaimed(cands []models.MatchCandidate, consumed map[string]bool) []models.MatchCandidate {
	sorted := make([]models.MatchCandidate, len(cands))
	copy(sorted, cands)
	SortCandidates(sorted)
	seen := map[string]bool{}
	out := sorted[:0]
	for _, c := range sorted {
		if consumed[c.RightID] || seen[c.RightID] {
			continue
		}
		seen[c.RightID] = true
		out = append(out, c)
	}
	return out
}

func tiedIDs(available []models.MatchCandidate) string {
	ids := []string{available[0].RightID}
	for _, c := range available[1:] {
		if !sameRank(available[0], c) {
			break
		}
		ids = append(ids, c.RightID)
	}
	return strings.Join(ids, ",")
}

// OrderLeft returns a copy of records in resolver processing order.
func OrderLeft(records []models.FinancialRecord, order models.LeftOrder) []models.FinancialRecord {
	out := make([]models.FinancialRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if order != models.LeftOrderDateAsc {
			if c := a.Magnitude().Cmp(b.Magnitude()); c != 0 {
				return c > 0
			}
		}
		if !a.DateOnly().Equal(b.DateOnly()) {
			return a.DateOnly().Before(b.DateOnly())
		}
		return CompareIDs(a.ID, b.ID) < 0
	})
	return out
}

// CompareIDs orders numeric ids numerically and anything else lexically.
func CompareIDs(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
