package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/books_reconcile/models"
	"bitbucket.org/mmdatafocus/books_reconcile/reconcile"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DuplicateProtectionNSFReversal = "nsf_reversal"
	DuplicateProtectionNone        = "none"

	DuplicateKeyDateAmount            = "date_amount"
	DuplicateKeyDateMagnitude         = "date_magnitude"
	DuplicateKeyDateAmountDescription = "date_amount_description"
)

// DefaultWindowPresets are the date windows per record type, in days.
func DefaultWindowPresets() map[string]int {
	return map[string]int{
		"exact":     0,
		"default":   3,
		"manual":    7,
		"etransfer": 45,
	}
}

// MatchingSettings is everything an operator can tune about a run.
// Precedence: command flags > YAML file (RECON_CONFIG) > RECON_* env > defaults.
type MatchingSettings struct {
	AmountTolerance      string                  `yaml:"amount_tolerance" validate:"numeric"`
	BalanceTolerance     string                  `yaml:"balance_tolerance" validate:"numeric"`
	DateWindowDays       *int                    `yaml:"date_window_days" validate:"omitempty,min=0"`
	DateWindowPresets    map[string]int          `yaml:"date_window_presets" validate:"dive,min=0"`
	DescriptionThreshold float64                 `yaml:"description_similarity_threshold" validate:"min=0,max=1"`
	Polarity             models.Polarity         `yaml:"polarity" validate:"oneof=expense deposit signed"`
	LeftOrder            models.LeftOrder        `yaml:"left_order" validate:"oneof=amount_desc date_asc"`
	AmbiguityPolicy      models.AmbiguityPolicy  `yaml:"ambiguity_policy" validate:"oneof=lowest_id flag"`
	Weights              reconcile.Weights       `yaml:"weights"`
	CheckBalance         bool                    `yaml:"check_balance"`
	DuplicateKey         string                  `yaml:"duplicate_key" validate:"oneof=date_amount date_magnitude date_amount_description"`
	DuplicateProtection  string                  `yaml:"duplicate_protection_predicate" validate:"oneof=nsf_reversal none"`
	Synonyms             map[string]string       `yaml:"synonyms"`
	Classifier           []reconcile.KeywordRule `yaml:"classifier" validate:"dive"`
	Sources              []models.RecordSource   `yaml:"sources" validate:"dive"`
}

func DefaultMatchingSettings() *MatchingSettings {
	w := reconcile.DefaultWeights()
	return &MatchingSettings{
		AmountTolerance:      "0.01",
		BalanceTolerance:     "0.01",
		DateWindowPresets:    DefaultWindowPresets(),
		DescriptionThreshold: 0.85,
		Polarity:             models.PolarityExpense,
		LeftOrder:            models.LeftOrderAmountDesc,
		AmbiguityPolicy:      models.AmbiguityPolicyLowestID,
		Weights:              w,
		CheckBalance:         true,
		DuplicateKey:         DuplicateKeyDateAmount,
		DuplicateProtection:  DuplicateProtectionNSFReversal,
	}
}

var settingsValidate = validator.New(validator.WithRequiredStructEnabled())

// LoadMatchingSettings applies env on top of defaults, then the YAML file at path
// (RECON_CONFIG when path is empty), and validates the result.
func LoadMatchingSettings(path string) (*MatchingSettings, error) {
	s := DefaultMatchingSettings()
	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if path == "" {
		path = os.Getenv("RECON_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read matching config: %w", err)
		}
		if err := s.applyYAML(data); err != nil {
			return nil, fmt.Errorf("parse matching config %s: %w", path, err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// applyYAML overlays data; keys absent from the document keep their current values
// and preset maps are merged key by key.
func (s *MatchingSettings) applyYAML(data []byte) error {
	return yaml.Unmarshal(data, s)
}

func (s *MatchingSettings) applyEnv() error {
	if v := envValue("RECON_AMOUNT_TOLERANCE"); v != "" {
		s.AmountTolerance = v
	}
	if v := envValue("RECON_BALANCE_TOLERANCE"); v != "" {
		s.BalanceTolerance = v
	}
	if v := envValue("RECON_DATE_WINDOW_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RECON_DATE_WINDOW_DAYS: %w", err)
		}
		s.DateWindowDays = &n
	}
	if v := envValue("RECON_DESCRIPTION_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RECON_DESCRIPTION_THRESHOLD: %w", err)
		}
		s.DescriptionThreshold = f
	}
	if v := envValue("RECON_POLARITY"); v != "" {
		s.Polarity = models.Polarity(strings.ToLower(v))
	}
	if v := envValue("RECON_LEFT_ORDER"); v != "" {
		s.LeftOrder = models.LeftOrder(strings.ToLower(v))
	}
	if v := envValue("RECON_AMBIGUITY_POLICY"); v != "" {
		s.AmbiguityPolicy = models.AmbiguityPolicy(strings.ToLower(v))
	}
	if v := envValue("RECON_DUPLICATE_PROTECTION"); v != "" {
		s.DuplicateProtection = strings.ToLower(v)
	}
	if v := envValue("RECON_CHECK_BALANCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RECON_CHECK_BALANCE: %w", err)
		}
		s.CheckBalance = b
	}
	return nil
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (s *MatchingSettings) Validate() error {
	if err := settingsValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid matching config: %w", err)
	}
	if w := s.Weights; w.Amount < 0 || w.Date < 0 || w.Description < 0 || w.Amount+w.Date+w.Description <= 0 {
		return errors.New("invalid matching config: weights must be non-negative with a positive sum")
	}
	if _, err := s.Registry(); err != nil {
		return fmt.Errorf("invalid matching config: %w", err)
	}
	return nil
}

// Registry returns the built-in sources with any configured source replacing the
// built-in one of the same name.
func (s *MatchingSettings) Registry() (models.SourceRegistry, error) {
	byName := map[string]models.RecordSource{}
	var order []string
	for _, src := range append(models.DefaultRecordSources(), s.Sources...) {
		if _, seen := byName[src.Name]; !seen {
			order = append(order, src.Name)
		}
		byName[src.Name] = src
	}
	sources := make([]models.RecordSource, 0, len(order))
	for _, name := range order {
		sources = append(sources, byName[name])
	}
	return models.NewSourceRegistry(sources)
}

// WindowFor resolves the date window for a left source: an explicit date_window_days
// wins, then the source's preset, then the "default" preset.
func (s *MatchingSettings) WindowFor(source models.RecordSource) int {
	if s.DateWindowDays != nil {
		return *s.DateWindowDays
	}
	if days, ok := s.DateWindowPresets[source.DateWindowPreset]; ok {
		return days
	}
	if days, ok := s.DateWindowPresets["default"]; ok {
		return days
	}
	return DefaultWindowPresets()["default"]
}

// EngineConfig builds the engine settings for a run whose left side is leftSource.
func (s *MatchingSettings) EngineConfig(leftSource models.RecordSource) (reconcile.Config, error) {
	cfg := reconcile.DefaultConfig()

	amountTol, err := decimal.NewFromString(s.AmountTolerance)
	if err != nil {
		return cfg, fmt.Errorf("amount_tolerance: %w", err)
	}
	balanceTol, err := decimal.NewFromString(s.BalanceTolerance)
	if err != nil {
		return cfg, fmt.Errorf("balance_tolerance: %w", err)
	}

	normalizer := reconcile.NewNormalizer(s.synonyms())
	cfg.Match.AmountTolerance = amountTol
	cfg.Match.DateWindowDays = s.WindowFor(leftSource)
	cfg.Match.DescriptionThreshold = s.DescriptionThreshold
	cfg.Match.Polarity = s.Polarity
	cfg.Match.Weights = s.Weights
	cfg.Match.Normalizer = normalizer
	if len(s.Classifier) > 0 {
		cfg.Match.Classifier = reconcile.NewKeywordClassifier(s.Classifier, normalizer)
	}
	cfg.Resolve = reconcile.ResolveOptions{Order: s.LeftOrder, Ambiguity: s.AmbiguityPolicy}
	cfg.BalanceTolerance = balanceTol
	cfg.CheckBalance = s.CheckBalance

	switch s.DuplicateKey {
	case DuplicateKeyDateMagnitude:
		cfg.DuplicateKey = reconcile.KeyDateMagnitude
	case DuplicateKeyDateAmountDescription:
		cfg.DuplicateKey = reconcile.KeyDateAmountDescription(normalizer)
	default:
		cfg.DuplicateKey = reconcile.KeyDateAmount
	}
	if s.DuplicateProtection == DuplicateProtectionNone {
		cfg.Protect = nil
	} else {
		cfg.Protect = reconcile.ProtectNSFReversalPairs(normalizer)
	}
	return cfg, nil
}

// synonyms merges configured synonyms over the built-in table.
func (s *MatchingSettings) synonyms() map[string]string {
	merged := make(map[string]string, len(reconcile.DefaultSynonyms)+len(s.Synonyms))
	for k, v := range reconcile.DefaultSynonyms {
		merged[k] = v
	}
	for k, v := range s.Synonyms {
		merged[k] = v
	}
	return merged
}
