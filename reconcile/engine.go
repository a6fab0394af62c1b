package reconcile

import (
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config bundles every tunable of a run.
type Config struct {
	Match            MatchConfig
	Resolve          ResolveOptions
	BalanceTolerance decimal.Decimal
	// CheckBalance runs the running-balance scan over the left set during Run.
	CheckBalance bool
	DuplicateKey KeyFunc
	// Protect is nil when duplicate protection is turned off.
	Protect ProtectFunc
}

func DefaultConfig() Config {
	return Config{
		Match:            DefaultMatchConfig(),
		Resolve:          DefaultResolveOptions(),
		BalanceTolerance: DefaultBalanceTolerance,
		CheckBalance:     true,
		DuplicateKey:     KeyDateAmount,
		Protect:          ProtectNSFReversalPairs(defaultNormalizer),
	}
}

type Engine struct {
	cfg      Config
	logger   *logrus.Logger
	newRunID func() string
	now      func() time.Time
}

func NewEngine(cfg Config, logger *logrus.Logger) (*Engine, error) {
	if err := cfg.Match.Validate(); err != nil {
		return nil, fmt.Errorf("invalid match config: %w", err)
	}
	if cfg.BalanceTolerance.IsNegative() {
		return nil, fmt.Errorf("invalid balance tolerance %s", cfg.BalanceTolerance)
	}
	if cfg.Match.Normalizer == nil {
		cfg.Match.Normalizer = defaultNormalizer
	}
	if cfg.DuplicateKey == nil {
		cfg.DuplicateKey = KeyDateAmount
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		newRunID: uuid.NewString,
		now:      time.Now,
	}, nil
}

// WithRunID fixes the run id instead of generating one.
func (e *Engine) WithRunID(runID string) *Engine {
	cp := *e
	cp.newRunID = func() string { return runID }
	return &cp
}

type RunInput struct {
	LeftSource  string
	RightSource string
	Left        []models.FinancialRecord
	Right       []models.FinancialRecord
	// Anchors are known opening balances per AccountRef.
	Anchors map[string]decimal.Decimal
}

// Run matches Left against Right and, when configured, checks the left running balance.
// It reads only the records it is given and never mutates them.
func (e *Engine) Run(in RunInput) *Report {
	report := e.newReport(in.LeftSource, in.RightSource)

	left, skippedLeft := ValidateRecords(in.Left)
	right, skippedRight := ValidateRecords(in.Right)
	report.Skipped = append(skippedLeft, skippedRight...)
	report.Summary.LeftCount = len(left)
	report.Summary.RightCount = len(right)

	// matched and excluded rows still count for balances and duplicates but are never linked again
	openLeft, closedLeft := SplitOpen(left)
	openRight, closedRight := SplitOpen(right)
	report.Summary.AlreadyReconciled = len(closedLeft) + len(closedRight)

	candidates := e.candidatesByLeft(openLeft, openRight)
	decisions := Resolve(openLeft, candidates, e.cfg.Resolve)

	leftGroups := FindDuplicates(left, e.cfg.DuplicateKey, e.cfg.Protect)
	report.Duplicates = append(e.duplicateGroups(in.LeftSource, leftGroups),
		e.duplicateGroups(in.RightSource, FindDuplicates(right, e.cfg.DuplicateKey, e.cfg.Protect))...)
	decisions = flagDuplicates(decisions, leftGroups, e.cfg.DuplicateKey)
	report.setDecisions(decisions, openLeft)

	if e.cfg.CheckBalance && hasDeclaredBalance(left) {
		report.setCheckpoints(ValidateByAccount(SortForBalance(left), in.Anchors, e.cfg.BalanceTolerance))
	}

	report.finish()
	e.logSummary("Run", report)
	return report
}

// CheckBalance validates one source's running balance without matching.
func (e *Engine) CheckBalance(source string, records []models.FinancialRecord, anchors map[string]decimal.Decimal) *Report {
	report := e.newReport(source, "")
	valid, skipped := ValidateRecords(records)
	report.Skipped = skipped
	report.Summary.LeftCount = len(valid)
	report.setCheckpoints(ValidateByAccount(SortForBalance(valid), anchors, e.cfg.BalanceTolerance))
	report.finish()
	e.logSummary("CheckBalance", report)
	return report
}

// FindDuplicates reports duplicate groups of one source without matching.
func (e *Engine) FindDuplicates(source string, records []models.FinancialRecord) *Report {
	report := e.newReport(source, "")
	valid, skipped := ValidateRecords(records)
	report.Skipped = skipped
	report.Summary.LeftCount = len(valid)
	report.Duplicates = e.duplicateGroups(source, FindDuplicates(valid, e.cfg.DuplicateKey, e.cfg.Protect))
	report.finish()
	e.logSummary("FindDuplicates", report)
	return report
}

func (e *Engine) newReport(leftSource, rightSource string) *Report {
	return &Report{
		RunID:       e.newRunID(),
		GeneratedAt: e.now(),
		LeftSource:  leftSource,
		RightSource: rightSource,
		Summary: Summary{
			LinkedAmount:     decimal.Zero,
			UnresolvedAmount: decimal.Zero,
		},
	}
}

// candidatesByLeft only scores right records inside each left record's date window.
func (e *Engine) candidatesByLeft(left, right []models.FinancialRecord) map[string][]models.MatchCandidate {
	pool := make([]models.FinancialRecord, len(right))
	copy(pool, right)
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].DateOnly().Before(pool[j].DateOnly()) })

	s := newScorer(e.cfg.Match)
	window := time.Duration(e.cfg.Match.DateWindowDays) * 24 * time.Hour
	out := make(map[string][]models.MatchCandidate, len(left))
	for _, l := range left {
		from := l.DateOnly().Add(-window)
		to := l.DateOnly().Add(window)
		lo := sort.Search(len(pool), func(i int) bool { return !pool[i].DateOnly().Before(from) })
		hi := sort.Search(len(pool), func(i int) bool { return pool[i].DateOnly().After(to) })
		if lo >= hi {
			continue
		}
		if cands := s.candidates(l, pool[lo:hi]); len(cands) > 0 {
			out[l.ID] = cands
		}
	}
	return out
}

func (e *Engine) duplicateGroups(source string, groups [][]models.FinancialRecord) []DuplicateGroup {
	out := make([]DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, DuplicateGroup{Source: source, Key: e.cfg.DuplicateKey(g[0]), Records: g})
	}
	return out
}

// flagDuplicates turns unlinked decisions of duplicate-group members into flag_duplicate.
func flagDuplicates(decisions []models.ReconciliationDecision, groups [][]models.FinancialRecord, key KeyFunc) []models.ReconciliationDecision {
	groupKey := map[string]string{}
	for _, g := range groups {
		for _, r := range g {
			groupKey[r.ID] = key(r)
		}
	}
	for i, d := range decisions {
		if d.Action == models.DecisionActionLink {
			continue
		}
		if k, ok := groupKey[d.LeftID]; ok {
			decisions[i].Action = models.DecisionActionFlagDuplicate
			decisions[i].Reason = "member of duplicate group " + k
		}
	}
	return decisions
}

func hasDeclaredBalance(records []models.FinancialRecord) bool {
	for _, r := range records {
		if r.DeclaredBalance != nil {
			return true
		}
	}
	return false
}

func (e *Engine) logSummary(funcName string, r *Report) {
	e.logger.WithFields(logrus.Fields{
		"module":             "reconcile",
		"funcName":           funcName,
		"run_id":             r.RunID,
		"left_source":        r.LeftSource,
		"right_source":       r.RightSource,
		"left_count":         r.Summary.LeftCount,
		"right_count":        r.Summary.RightCount,
		"linked":             r.Summary.Linked,
		"unresolved":         len(r.Unresolved),
		"ambiguous":          r.Summary.Ambiguous,
		"duplicate_groups":   r.Summary.DuplicateGroups,
		"balance_mismatches": r.Summary.BalanceMismatches,
		"skipped":            r.Summary.Skipped,
		"already_reconciled": r.Summary.AlreadyReconciled,
	}).Info("reconciliation finished")
}
