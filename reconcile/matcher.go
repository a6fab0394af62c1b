package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/shopspring/decimal"
)

type Weights struct {
	Amount      float64 `yaml:"amount" json:"amount"`
	Date        float64 `yaml:"date" json:"date"`
	Description float64 `yaml:"description" json:"description"`
}

func DefaultWeights() Weights {
	return Weights{Amount: 0.3, Date: 0.2, Description: 0.5}
}

func (w Weights) sum() float64 {
	return w.Amount + w.Date + w.Description
}

type MatchConfig struct {
	AmountTolerance      decimal.Decimal
	DateWindowDays       int
	DescriptionThreshold float64
	Polarity             models.Polarity
	Weights              Weights
	Normalizer           *Normalizer
	// Classifier, when set, scores two descriptions of the same known entity as identical.
	Classifier EntityClassifier
}

func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		AmountTolerance:      decimal.NewFromFloat(0.01),
		DateWindowDays:       3,
		DescriptionThreshold: 0.85,
		Polarity:             models.PolarityExpense,
		Weights:              DefaultWeights(),
		Normalizer:           defaultNormalizer,
	}
}

func (c MatchConfig) Validate() error {
	if c.AmountTolerance.IsNegative() {
		return errors.New("amount tolerance must not be negative")
	}
	if c.DateWindowDays < 0 {
		return errors.New("date window must not be negative")
	}
	if c.DescriptionThreshold < 0 || c.DescriptionThreshold > 1 {
		return fmt.Errorf("description threshold %v out of range [0,1]", c.DescriptionThreshold)
	}
	if !c.Polarity.IsValid() {
		return fmt.Errorf("invalid polarity %q", c.Polarity)
	}
	w := c.Weights
	if w.Amount < 0 || w.Date < 0 || w.Description < 0 || w.sum() <= 0 {
		return errors.New("weights must be non-negative with a positive sum")
	}
	return nil
}

// FindCandidates returns every right record that passes the amount, date and description
// filters for left, best first. Records with no id on either side produce nothing.
func FindCandidates(left models.FinancialRecord, rightPool []models.FinancialRecord, cfg MatchConfig) []models.MatchCandidate {
	s := newScorer(cfg)
	return s.candidates(left, rightPool)
}

type scorer struct {
	cfg       MatchConfig
	tolerance float64
	norm      map[string]string
}

func newScorer(cfg MatchConfig) *scorer {
	if cfg.Normalizer == nil {
		cfg.Normalizer = defaultNormalizer
	}
	if cfg.Weights.sum() <= 0 {
		cfg.Weights = DefaultWeights()
	}
	if cfg.Polarity == "" {
		cfg.Polarity = models.PolarityExpense
	}
	return &scorer{
		cfg:       cfg,
		tolerance: cfg.AmountTolerance.InexactFloat64(),
		norm:      map[string]string{},
	}
}

func (s *scorer) normalize(text string) string {
	if v, ok := s.norm[text]; ok {
		return v
	}
	v := s.cfg.Normalizer.Normalize(text)
	s.norm[text] = v
	return v
}

func (s *scorer) candidates(left models.FinancialRecord, pool []models.FinancialRecord) []models.MatchCandidate {
	if left.ID == "" {
		return nil
	}
	leftDesc := s.normalize(left.Description)
	seen := map[string]bool{}
	var out []models.MatchCandidate
	for _, right := range pool {
		if right.ID == "" || seen[right.ID] {
			continue
		}
		c, ok := s.score(left, leftDesc, right)
		if !ok {
			continue
		}
		seen[right.ID] = true
		out = append(out, c)
	}
	SortCandidates(out)
	return out
}

func (s *scorer) score(left models.FinancialRecord, leftDesc string, right models.FinancialRecord) (models.MatchCandidate, bool) {
	delta, ok := amountDelta(left, right, s.cfg.Polarity)
	if !ok || delta.GreaterThan(s.cfg.AmountTolerance) {
		return models.MatchCandidate{}, false
	}
	days := models.DaysBetween(left.Date, right.Date)
	if days > s.cfg.DateWindowDays {
		return models.MatchCandidate{}, false
	}
	rightDesc := s.normalize(right.Description)
	desc := DescriptionSimilarity(leftDesc, rightDesc)
	if s.cfg.Classifier != nil && desc < 1 {
		if a := s.cfg.Classifier.Classify(leftDesc); a != "" && a == s.cfg.Classifier.Classify(rightDesc) {
			desc = 1
		}
	}
	if s.cfg.DescriptionThreshold > 0 && desc < s.cfg.DescriptionThreshold {
		return models.MatchCandidate{}, false
	}

	amountComponent := 1.0
	if s.tolerance > 0 {
		amountComponent = 1 - delta.InexactFloat64()/s.tolerance
	}
	dateComponent := 1.0
	if s.cfg.DateWindowDays > 0 {
		dateComponent = 1 - float64(days)/float64(s.cfg.DateWindowDays)
	}
	w := s.cfg.Weights
	combined := (w.Amount*amountComponent + w.Date*dateComponent + w.Description*desc) / w.sum()

	return models.MatchCandidate{
		LeftID:           left.ID,
		RightID:          right.ID,
		AmountDelta:      delta,
		DateDelta:        days,
		DescriptionScore: desc,
		CombinedScore:    combined,
	}, true
}

// amountDelta compares the amounts under the polarity rule; false means the sign disqualifies the pair.
func amountDelta(left, right models.FinancialRecord, polarity models.Polarity) (decimal.Decimal, bool) {
	switch polarity {
	case models.PolaritySigned:
		return left.SignedAmount().Sub(right.SignedAmount()).Abs(), true
	case models.PolarityDeposit:
		if !left.SignedAmount().IsPositive() {
			return decimal.Zero, false
		}
	default:
		if !left.IsDebit() {
			return decimal.Zero, false
		}
	}
	return left.Magnitude().Sub(right.SignedAmount()).Abs(), true
}

// SortCandidates orders by combined score desc, date delta asc, description score desc, right id asc.
func SortCandidates(cands []models.MatchCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return candidateLess(cands[i], cands[j])
	})
}

func candidateLess(a, b models.MatchCandidate) bool {
	if a.CombinedScore != b.CombinedScore {
		return a.CombinedScore > b.CombinedScore
	}
	if a.DateDelta != b.DateDelta {
		return a.DateDelta < b.DateDelta
	}
	if a.DescriptionScore != b.DescriptionScore {
		return a.DescriptionScore > b.DescriptionScore
	}
	return CompareIDs(a.RightID, b.RightID) < 0
}

// sameRank reports whether only the id tie-break separates a and b.
func sameRank(a, b models.MatchCandidate) bool {
	return a.CombinedScore == b.CombinedScore && a.DateDelta == b.DateDelta && a.DescriptionScore == b.DescriptionScore
}
