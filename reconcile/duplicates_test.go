package reconcile

import (
	"testing"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
)

func TestFindDuplicatesByDateAmount(t *testing.T) {
	records := []models.FinancialRecord{
		receipt(t, "1", "2012-01-01", "50", "A"),
		receipt(t, "2", "2012-01-01", "50", "B"),
		receipt(t, "3", "2012-01-02", "50", "A"),
	}
	groups := FindDuplicates(records, KeyDateAmount, nil)
	if len(groups) != 1 {
		t.Fatalf("want 1 group, got %d", len(groups))
	}
	if len(groups[0]) != 2 || groups[0][0].ID != "1" || groups[0][1].ID != "2" {
		t.Fatalf("want group [1 2], got %+v", groups[0])
	}
}

func TestFindDuplicatesAmountScaleDoesNotSplitGroups(t *testing.T) {
	records := []models.FinancialRecord{
		receipt(t, "1", "2012-01-01", "50", ""),
		receipt(t, "2", "2012-01-01", "50.00", ""),
	}
	if groups := FindDuplicates(records, KeyDateAmount, nil); len(groups) != 1 {
		t.Fatalf("50 and 50.00 should share a key, got %d groups", len(groups))
	}
}

func TestFindDuplicatesGroupOrderAndSize(t *testing.T) {
	records := []models.FinancialRecord{
		receipt(t, "1", "2012-03-01", "10", ""),
		receipt(t, "2", "2012-01-01", "20", ""),
		receipt(t, "3", "2012-03-01", "10", ""),
		receipt(t, "4", "2012-01-01", "20", ""),
		receipt(t, "5", "2012-03-01", "10", ""),
	}
	groups := FindDuplicates(records, KeyDateAmount, nil)
	if len(groups) != 2 {
		t.Fatalf("want 2 groups, got %d", len(groups))
	}
	if len(groups[0]) != 3 || groups[0][0].ID != "1" {
		t.Fatalf("first group should be the 3 rows of 2012-03-01, got %+v", groups[0])
	}
	if len(groups[1]) != 2 || groups[1][0].ID != "2" {
		t.Fatalf("second group should be rows 2 and 4, got %+v", groups[1])
	}
}

func TestFindDuplicatesWithDescriptionKey(t *testing.T) {
	records := []models.FinancialRecord{
		receipt(t, "1", "2012-01-01", "50", "Shell #1"),
		receipt(t, "2", "2012-01-01", "50", "SHELL 1"),
		receipt(t, "3", "2012-01-01", "50", "Esso"),
	}
	groups := FindDuplicates(records, KeyDateAmountDescription(NewNormalizer(nil)), nil)
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("want one group of the two Shell rows, got %+v", groups)
	}
}

func TestProtectNSFReversalPairs(t *testing.T) {
	protect := ProtectNSFReversalPairs(NewNormalizer(DefaultSynonyms))

	chargeAndReversal := []models.FinancialRecord{
		bankDebit(t, "1", "2012-05-01", "500.00", "CHQ 112"),
		bankCredit(t, "2", "2012-05-01", "500.00", "CHQ 112"),
	}
	if groups := FindDuplicates(chargeAndReversal, KeyDateMagnitude, protect); len(groups) != 0 {
		t.Fatalf("opposite-direction pair should be protected, got %+v", groups)
	}

	nsfPair := []models.FinancialRecord{
		bankDebit(t, "3", "2012-05-02", "45.00", "CHQ 118 HYDRO"),
		bankDebit(t, "4", "2012-05-02", "45.00", "Returned item - non-sufficient funds"),
	}
	if groups := FindDuplicates(nsfPair, KeyDateAmount, protect); len(groups) != 0 {
		t.Fatalf("NSF pair should be protected, got %+v", groups)
	}

	plain := []models.FinancialRecord{
		bankDebit(t, "5", "2012-05-03", "12.00", "COFFEE"),
		bankDebit(t, "6", "2012-05-03", "12.00", "COFFEE"),
	}
	if groups := FindDuplicates(plain, KeyDateAmount, protect); len(groups) != 1 {
		t.Fatalf("plain duplicates should be reported, got %+v", groups)
	}

	if groups := FindDuplicates(nsfPair, KeyDateAmount, nil); len(groups) != 1 {
		t.Fatalf("without protection the NSF pair is a duplicate group")
	}
}

func TestProtectNSFReversalPairsReportsRepeatedFees(t *testing.T) {
	protect := ProtectNSFReversalPairs(NewNormalizer(DefaultSynonyms))

	fees := []models.FinancialRecord{
		bankDebit(t, "1", "2012-06-01", "45.00", "NSF FEE"),
		bankDebit(t, "2", "2012-06-01", "45.00", "NSF FEE"),
	}
	groups := FindDuplicates(fees, KeyDateAmount, protect)
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("two identical NSF fees are a double charge, got %+v", groups)
	}

	allKeyword := []models.FinancialRecord{
		bankDebit(t, "3", "2012-06-02", "45.00", "NSF FEE"),
		bankDebit(t, "4", "2012-06-02", "45.00", "Returned item - non-sufficient funds"),
	}
	if groups := FindDuplicates(allKeyword, KeyDateAmount, protect); len(groups) != 1 {
		t.Fatalf("keyword rows without a plain charge should be reported, got %+v", groups)
	}

	extraFee := []models.FinancialRecord{
		bankDebit(t, "5", "2012-06-03", "45.00", "CHQ 120"),
		bankDebit(t, "6", "2012-06-03", "45.00", "NSF RETURN CHQ 120"),
		bankDebit(t, "7", "2012-06-03", "45.00", "NSF FEE"),
	}
	if groups := FindDuplicates(extraFee, KeyDateAmount, protect); len(groups) != 1 {
		t.Fatalf("a pair plus an extra fee should be reported, got %+v", groups)
	}
}

func TestKeepLowestIDAcrossSources(t *testing.T) {
	bank := bankDebit(t, "7", "2012-01-01", "5", "")
	groups := [][]models.FinancialRecord{{
		receipt(t, "9", "2012-01-01", "5", ""),
		bank,
		receipt(t, "7", "2012-01-01", "5", ""),
	}}
	deletes := KeepLowestID(groups)
	if len(deletes) != 2 {
		t.Fatalf("rows sharing an id across sources are different rows, want 2 deletes, got %+v", deletes)
	}
	for _, d := range deletes {
		if d.Ref == bank.Ref() {
			t.Fatalf("kept row %+v must not be deleted", bank.Ref())
		}
	}
}

func TestKeepLowestID(t *testing.T) {
	groups := [][]models.FinancialRecord{{
		receipt(t, "12", "2012-01-01", "5", ""),
		receipt(t, "7", "2012-01-01", "5", ""),
		receipt(t, "9", "2012-01-01", "5", ""),
	}}
	deletes := KeepLowestID(groups)
	if len(deletes) != 2 {
		t.Fatalf("want 2 deletes, got %d", len(deletes))
	}
	for _, d := range deletes {
		if d.Ref.ID == "7" {
			t.Fatalf("lowest id must be kept")
		}
		if d.Ref.Source != "receipts" {
			t.Fatalf("delete should carry the source, got %+v", d.Ref)
		}
	}
}
