package reconcile

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
)

// KeyFunc builds the grouping key; an empty key keeps the record out of every group.
type KeyFunc func(models.FinancialRecord) string

// ProtectFunc returns true for groups that look duplicated but are legitimate.
type ProtectFunc func(group []models.FinancialRecord) bool

// FindDuplicates groups records by key. Groups come back in first-appearance order with
// members in input order.
func FindDuplicates(records []models.FinancialRecord, key KeyFunc, protect ProtectFunc) [][]models.FinancialRecord {
	if key == nil {
		key = KeyDateAmount
	}
	var keys []string
	groups := map[string][]models.FinancialRecord{}
	for _, r := range records {
		k := key(r)
		if k == "" {
			continue
		}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r)
	}
	var out [][]models.FinancialRecord
	for _, k := range keys {
		g := groups[k]
		if len(g) < 2 {
			continue
		}
		if protect != nil && protect(g) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func KeyDateAmount(r models.FinancialRecord) string {
	return r.DateOnly().Format("2006-01-02") + "|" + r.SignedAmount().String()
}

// KeyDateMagnitude ignores direction, so a charge and its reversal share a key.
func KeyDateMagnitude(r models.FinancialRecord) string {
	return r.DateOnly().Format("2006-01-02") + "|" + r.Magnitude().String()
}

func KeyDateAmountDescription(n *Normalizer) KeyFunc {
	return func(r models.FinancialRecord) string {
		return KeyDateAmount(r) + "|" + n.Normalize(r.Description)
	}
}

var reversalKeywords = map[string]bool{
	"nsf":      true,
	"reversal": true,
	"reversed": true,
	"reverse":  true,
	"returned": true,
	"return":   true,
	"rtn":      true,
	"nsfrev":   true,
}

// ProtectNSFReversalPairs spares groups that are charge/reversal pairs: as many debits as
// credits, or as many reversals (NSF/return keyword) as plain charges. A group where every
// member carries the keyword is a repeated fee, not a pair.
func ProtectNSFReversalPairs(n *Normalizer) ProtectFunc {
	return func(group []models.FinancialRecord) bool {
		var debits, credits, reversals int
		for _, r := range group {
			switch {
			case r.IsDebit():
				debits++
			case r.SignedAmount().IsPositive():
				credits++
			}
			if hasReversalKeyword(n.Normalize(r.Description)) {
				reversals++
			}
		}
		if debits > 0 && debits == credits {
			return true
		}
		return reversals > 0 && reversals*2 == len(group)
	}
}

func hasReversalKeyword(normalized string) bool {
	for _, tok := range strings.Fields(normalized) {
		if reversalKeywords[tok] {
			return true
		}
	}
	return false
}

// KeepLowestID plans deletion of every group member except the one with the smallest id.
// The keep policy is an operator choice; nothing in the engine calls this on its own.
func KeepLowestID(groups [][]models.FinancialRecord) []models.DeleteInstruction {
	var out []models.DeleteInstruction
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		keep := g[0]
		for _, r := range g[1:] {
			if CompareIDs(r.ID, keep.ID) < 0 {
				keep = r
			}
		}
		for _, r := range g {
			if r.Ref() == keep.Ref() {
				continue
			}
			out = append(out, models.DeleteInstruction{
				Ref:    r.Ref(),
				Reason: fmt.Sprintf("duplicate of %s (%s)", keep.ID, KeyDateAmount(r)),
			})
		}
	}
	return out
}
