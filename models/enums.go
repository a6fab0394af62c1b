package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

type RecordStatus string

const (
	RecordStatusUnmatched RecordStatus = "unmatched"
	RecordStatusMatched   RecordStatus = "matched"
	RecordStatusExcluded  RecordStatus = "excluded"
)

func (s RecordStatus) IsValid() bool {
	switch s {
	case RecordStatusUnmatched, RecordStatusMatched, RecordStatusExcluded:
		return true
	}
	return false
}

// ParseRecordStatus accepts the stored value case-insensitively; blank means unmatched.
func ParseRecordStatus(str string) (RecordStatus, error) {
	s := RecordStatus(strings.ToLower(strings.TrimSpace(str)))
	if s == "" {
		return RecordStatusUnmatched, nil
	}
	if !s.IsValid() {
		return "", fmt.Errorf("invalid record status %q", str)
	}
	return s, nil
}

// Value implements the driver.Valuer interface
func (s RecordStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements the sql.Scanner interface
func (s *RecordStatus) Scan(value interface{}) error {
	if value == nil {
		*s = RecordStatusUnmatched
		return nil
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot convert %T to RecordStatus", value)
	}
	parsed, err := ParseRecordStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type DecisionAction string

const (
	DecisionActionLink          DecisionAction = "link"
	DecisionActionFlagDuplicate DecisionAction = "flag_duplicate"
	DecisionActionFlagOrphan    DecisionAction = "flag_orphan"
	DecisionActionNoMatch       DecisionAction = "no_match"
)

type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeWrite  Mode = "write"
)

// ParseMode maps CLI spellings ("dry-run", "dry_run", "write") onto Mode.
func ParseMode(str string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "", "dry_run", "dry-run", "dryrun":
		return ModeDryRun, nil
	case "write":
		return ModeWrite, nil
	default:
		return "", errors.New("mode must be dry_run or write")
	}
}

type ChangeKind string

const (
	ChangeKindLink               ChangeKind = "link"
	ChangeKindSetStatus          ChangeKind = "set_status"
	ChangeKindSetDeclaredBalance ChangeKind = "set_declared_balance"
	ChangeKindDelete             ChangeKind = "delete"
)

// Polarity says how right-pool amounts relate to left signed amounts.
type Polarity string

const (
	// left debits (negative) match positive expense rows
	PolarityExpense Polarity = "expense"
	// left credits (positive) match positive deposit rows
	PolarityDeposit Polarity = "deposit"
	PolaritySigned  Polarity = "signed"
)

func (p Polarity) IsValid() bool {
	switch p {
	case PolarityExpense, PolarityDeposit, PolaritySigned:
		return true
	}
	return false
}

type LeftOrder string

const (
	LeftOrderAmountDesc LeftOrder = "amount_desc"
	LeftOrderDateAsc    LeftOrder = "date_asc"
)

func (o LeftOrder) IsValid() bool {
	return o == LeftOrderAmountDesc || o == LeftOrderDateAsc
}

type AmbiguityPolicy string

const (
	AmbiguityPolicyLowestID AmbiguityPolicy = "lowest_id"
	AmbiguityPolicyFlag     AmbiguityPolicy = "flag"
)

func (p AmbiguityPolicy) IsValid() bool {
	return p == AmbiguityPolicyLowestID || p == AmbiguityPolicyFlag
}

type FindingType string

const (
	FindingTypeBalanceMismatch FindingType = "BALANCE_MISMATCH"
	FindingTypeDuplicateGroup  FindingType = "DUPLICATE_GROUP"
	FindingTypeAmbiguousMatch  FindingType = "AMBIGUOUS_MATCH"
	FindingTypeOrphan          FindingType = "ORPHAN"
)

type RunStatus string

const (
	RunStatusCommitted  RunStatus = "COMMITTED"
	RunStatusRolledBack RunStatus = "ROLLED_BACK"
	RunStatusRestored   RunStatus = "RESTORED"
)
