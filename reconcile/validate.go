package reconcile

import (
	"errors"
	"strings"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRecords splits records into usable ones and skipped ones with a reason.
// A blank status is read as unmatched. Later rows reusing an id already seen are skipped.
func ValidateRecords(records []models.FinancialRecord) ([]models.FinancialRecord, []models.SkippedRecord) {
	valid := make([]models.FinancialRecord, 0, len(records))
	var skipped []models.SkippedRecord
	seen := map[string]bool{}
	for _, r := range records {
		if reason := recordProblem(r); reason != "" {
			skipped = append(skipped, models.SkippedRecord{RecordID: r.ID, Source: r.Source, Reason: reason})
			continue
		}
		if seen[r.ID] {
			skipped = append(skipped, models.SkippedRecord{RecordID: r.ID, Source: r.Source, Reason: "duplicate id in input set"})
			continue
		}
		seen[r.ID] = true
		if r.Status == "" {
			r.Status = models.RecordStatusUnmatched
		}
		valid = append(valid, r)
	}
	return valid, skipped
}

func recordProblem(r models.FinancialRecord) string {
	r.ID = strings.TrimSpace(r.ID)
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "ID":
				return "missing id"
			case "Date":
				return "missing date"
			}
			return verrs[0].Error()
		}
		return err.Error()
	}
	if r.Status != "" && !r.Status.IsValid() {
		return "invalid status " + string(r.Status)
	}
	if r.SplitAmounts && (r.Debit.IsNegative() || r.Credit.IsNegative()) {
		return "negative debit or credit"
	}
	return ""
}

// SplitOpen separates records still open for matching from matched or excluded ones.
// Input order is kept on both sides.
func SplitOpen(records []models.FinancialRecord) (open, closed []models.FinancialRecord) {
	for _, r := range records {
		if r.Status == "" || r.Status == models.RecordStatusUnmatched {
			open = append(open, r)
			continue
		}
		closed = append(closed, r)
	}
	return open, closed
}
