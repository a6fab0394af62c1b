package models

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrUnknownSource       = errors.New("unknown record source")
	ErrInvalidIdentifier   = errors.New("invalid sql identifier")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrRecordNotFound      = errors.New("record not found")
	ErrBackupNotFound      = errors.New("backup not found")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// IsValidIdentifier reports whether name is safe to use as a table or column name.
func IsValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// RecordSource maps one source table onto FinancialRecord fields.
// Either AmountColumn or both DebitColumn and CreditColumn must be set.
type RecordSource struct {
	Name              string `yaml:"name" json:"name" validate:"required"`
	Table             string `yaml:"table" json:"table" validate:"required"`
	IDColumn          string `yaml:"id_column" json:"id_column" validate:"required"`
	DateColumn        string `yaml:"date_column" json:"date_column" validate:"required"`
	AmountColumn      string `yaml:"amount_column" json:"amount_column"`
	DebitColumn       string `yaml:"debit_column" json:"debit_column"`
	CreditColumn      string `yaml:"credit_column" json:"credit_column"`
	DescriptionColumn string `yaml:"description_column" json:"description_column"`
	AccountColumn     string `yaml:"account_column" json:"account_column"`
	StatusColumn      string `yaml:"status_column" json:"status_column"`
	LinkColumn        string `yaml:"link_column" json:"link_column"`
	BalanceColumn     string `yaml:"balance_column" json:"balance_column"`
	// DateWindowPreset picks the default date window when this source is the left side.
	DateWindowPreset string `yaml:"date_window_preset" json:"date_window_preset"`
}

func (s RecordSource) SplitAmounts() bool {
	return s.AmountColumn == "" && s.DebitColumn != "" && s.CreditColumn != ""
}

// Columns returns every configured column name (non-empty), for validation and backups.
func (s RecordSource) Columns() []string {
	var cols []string
	for _, c := range []string{
		s.IDColumn, s.DateColumn, s.AmountColumn, s.DebitColumn, s.CreditColumn,
		s.DescriptionColumn, s.AccountColumn, s.StatusColumn, s.LinkColumn, s.BalanceColumn,
	} {
		if c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func (s RecordSource) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("record source name is required")
	}
	if !IsValidIdentifier(s.Table) {
		return fmt.Errorf("%w: table %q", ErrInvalidIdentifier, s.Table)
	}
	if s.IDColumn == "" || s.DateColumn == "" {
		return fmt.Errorf("record source %s: id_column and date_column are required", s.Name)
	}
	for _, c := range s.Columns() {
		if !IsValidIdentifier(c) {
			return fmt.Errorf("%w: column %q in source %s", ErrInvalidIdentifier, c, s.Name)
		}
	}
	if s.AmountColumn == "" && (s.DebitColumn == "" || s.CreditColumn == "") {
		return fmt.Errorf("record source %s: amount_column or debit_column+credit_column is required", s.Name)
	}
	if s.AmountColumn != "" && (s.DebitColumn != "" || s.CreditColumn != "") {
		return fmt.Errorf("record source %s: amount_column and debit/credit columns are exclusive", s.Name)
	}
	return nil
}

// DefaultRecordSources describes the bookkeeping tables the old scripts worked on.
func DefaultRecordSources() []RecordSource {
	return []RecordSource{
		{
			Name:              "banking_transactions",
			Table:             "banking_transactions",
			IDColumn:          "transaction_id",
			DateColumn:        "transaction_date",
			DebitColumn:       "debit_amount",
			CreditColumn:      "credit_amount",
			DescriptionColumn: "description",
			AccountColumn:     "account_number",
			StatusColumn:      "reconciliation_status",
			LinkColumn:        "receipt_id",
			BalanceColumn:     "balance",
			DateWindowPreset:  "default",
		},
		{
			Name:              "receipts",
			Table:             "receipts",
			IDColumn:          "receipt_id",
			DateColumn:        "receipt_date",
			AmountColumn:      "gross_amount",
			DescriptionColumn: "vendor_name",
			AccountColumn:     "mapped_bank_account_id",
			StatusColumn:      "reconciliation_status",
			LinkColumn:        "banking_transaction_id",
			DateWindowPreset:  "manual",
		},
		{
			Name:              "payments",
			Table:             "payments",
			IDColumn:          "payment_id",
			DateColumn:        "payment_date",
			AmountColumn:      "amount",
			DescriptionColumn: "notes",
			AccountColumn:     "account_number",
			StatusColumn:      "reconciliation_status",
			LinkColumn:        "banking_transaction_id",
			DateWindowPreset:  "etransfer",
		},
		{
			Name:              "charter_charges",
			Table:             "charter_charges",
			IDColumn:          "charge_id",
			DateColumn:        "charge_date",
			AmountColumn:      "amount",
			DescriptionColumn: "description",
			AccountColumn:     "charter_id",
			StatusColumn:      "reconciliation_status",
			LinkColumn:        "payment_id",
			DateWindowPreset:  "exact",
		},
	}
}

// SourceRegistry holds validated sources by name.
type SourceRegistry map[string]RecordSource

func NewSourceRegistry(sources []RecordSource) (SourceRegistry, error) {
	reg := SourceRegistry{}
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		reg[s.Name] = s
	}
	return reg, nil
}

func (r SourceRegistry) Get(name string) (RecordSource, error) {
	s, ok := r[name]
	if !ok {
		return RecordSource{}, fmt.Errorf("%w: %s (known: %s)", ErrUnknownSource, name, strings.Join(r.Names(), ", "))
	}
	return s, nil
}

func (r SourceRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
