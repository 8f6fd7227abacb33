package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BudgetPeriod identifies the recurring window a budget is measured over.
type BudgetPeriod string

// BudgetPeriod constants enumerate the supported window types.
const (
	PeriodDaily     BudgetPeriod = "daily"
	PeriodWeekly    BudgetPeriod = "weekly"
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodYearly    BudgetPeriod = "yearly"
)

// Valid reports whether the period is a known window type.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

// BudgetAction is the configured response when a threshold is crossed.
type BudgetAction string

// BudgetAction constants, ordered from least to most restrictive.
const (
	ActionWarnOnly          BudgetAction = "warn_only"
	ActionRestrictExpensive BudgetAction = "restrict_expensive"
	ActionRestrictAll       BudgetAction = "restrict_all"
	ActionRequireApproval   BudgetAction = "require_approval"
	ActionBlockExecution    BudgetAction = "block_execution"
)

// Severity returns the restrictiveness rank of an action. Higher is more
// restrictive; unknown actions rank below warn_only.
func (a BudgetAction) Severity() int {
	switch a {
	case ActionWarnOnly:
		return 1
	case ActionRestrictExpensive:
		return 2
	case ActionRestrictAll:
		return 3
	case ActionRequireApproval:
		return 4
	case ActionBlockExecution:
		return 5
	}
	return 0
}

// Valid reports whether the action is a known enforcement action.
func (a BudgetAction) Valid() bool { return a.Severity() > 0 }

// BudgetStatus summarizes how far through a budget the current spend is.
type BudgetStatus string

// BudgetStatus constants, ordered from least to most severe.
const (
	StatusHealthy   BudgetStatus = "healthy"
	StatusWarning   BudgetStatus = "warning"
	StatusCritical  BudgetStatus = "critical"
	StatusExceeded  BudgetStatus = "exceeded"
	StatusSuspended BudgetStatus = "suspended"
)

// Rank returns the severity rank of a status for worst-of rollups.
func (s BudgetStatus) Rank() int {
	switch s {
	case StatusHealthy:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	case StatusExceeded:
		return 4
	case StatusSuspended:
		return 5
	}
	return 0
}

// ThresholdList is an ascending list of percentage thresholds stored as JSON.
type ThresholdList []int

// Value implements driver.Valuer.
func (l ThresholdList) Value() (driver.Value, error) {
	if l == nil {
		l = ThresholdList{}
	}
	data, errMarshal := json.Marshal([]int(l))
	if errMarshal != nil {
		return nil, errMarshal
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *ThresholdList) Scan(value any) error {
	if value == nil {
		*l = ThresholdList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("threshold list: unsupported scan type %T", value)
	}
	if len(data) == 0 {
		*l = ThresholdList{}
		return nil
	}
	return json.Unmarshal(data, (*[]int)(l))
}

// Validate checks that thresholds are distinct, ascending and within [0,100].
func (l ThresholdList) Validate() error {
	prev := -1
	for _, pct := range l {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("threshold %d outside [0,100]", pct)
		}
		if pct <= prev {
			return errors.New("thresholds must be ascending and distinct")
		}
		prev = pct
	}
	return nil
}

// Contains reports whether the list includes the given percentage.
func (l ThresholdList) Contains(pct int) bool {
	for _, v := range l {
		if v == pct {
			return true
		}
	}
	return false
}

// ActionMap maps a threshold percentage to the action taken when crossed.
// JSON object keys are strings, so thresholds are stored as decimal strings.
type ActionMap map[string]BudgetAction

// Value implements driver.Valuer.
func (m ActionMap) Value() (driver.Value, error) {
	if m == nil {
		m = ActionMap{}
	}
	data, errMarshal := json.Marshal(map[string]BudgetAction(m))
	if errMarshal != nil {
		return nil, errMarshal
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *ActionMap) Scan(value any) error {
	if value == nil {
		*m = ActionMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("action map: unsupported scan type %T", value)
	}
	if len(data) == 0 {
		*m = ActionMap{}
		return nil
	}
	return json.Unmarshal(data, (*map[string]BudgetAction)(m))
}

// ActionFor returns the action configured for a threshold percentage.
func (m ActionMap) ActionFor(pct int) (BudgetAction, bool) {
	action, ok := m[strconv.Itoa(pct)]
	return action, ok
}

// Thresholds returns the configured threshold keys in ascending order.
func (m ActionMap) Thresholds() []int {
	out := make([]int, 0, len(m))
	for key := range m {
		pct, errParse := strconv.Atoi(key)
		if errParse != nil {
			continue
		}
		out = append(out, pct)
	}
	sort.Ints(out)
	return out
}

// Validate checks every action is known and keyed on a configured threshold.
// 100 is always an implicit threshold.
func (m ActionMap) Validate(thresholds ThresholdList) error {
	for key, action := range m {
		pct, errParse := strconv.Atoi(key)
		if errParse != nil {
			return fmt.Errorf("action key %q is not a percentage", key)
		}
		if !action.Valid() {
			return fmt.Errorf("unknown action %q for threshold %d", action, pct)
		}
		if pct != 100 && !thresholds.Contains(pct) {
			return fmt.Errorf("action keyed on unconfigured threshold %d", pct)
		}
	}
	return nil
}

// appliesToAll is the sentinel meaning a dimension is unconstrained.
const appliesToAll = "all"

// AppliesTo filters which users, providers and organizations a budget
// governs. A nil dimension, or one containing "all", is unconstrained.
// Present dimensions combine with logical AND.
type AppliesTo struct {
	Users         []string `json:"users,omitempty"`
	Providers     []string `json:"providers,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
}

// Value implements driver.Valuer.
func (f AppliesTo) Value() (driver.Value, error) {
	data, errMarshal := json.Marshal(f)
	if errMarshal != nil {
		return nil, errMarshal
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (f *AppliesTo) Scan(value any) error {
	if value == nil {
		*f = AppliesTo{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("applies_to: unsupported scan type %T", value)
	}
	if len(data) == 0 {
		*f = AppliesTo{}
		return nil
	}
	return json.Unmarshal(data, f)
}

// dimensionMatches applies the absent/"all"/membership rule for one dimension.
func dimensionMatches(constraint []string, id string) bool {
	if len(constraint) == 0 {
		return true
	}
	for _, v := range constraint {
		v = strings.TrimSpace(v)
		if v == appliesToAll || v == id {
			return true
		}
	}
	return false
}

// Matches reports whether the filter governs the queried identifiers.
// Empty provider or organization arguments only satisfy unconstrained
// dimensions.
func (f AppliesTo) Matches(userID, provider, organizationID string) bool {
	if !dimensionMatches(f.Users, userID) {
		return false
	}
	return f.MatchesScope(provider, organizationID)
}

// MatchesScope reports whether the filter governs the queried provider and
// organization, ignoring the user dimension.
func (f AppliesTo) MatchesScope(provider, organizationID string) bool {
	if !dimensionMatches(f.Providers, provider) {
		return false
	}
	return dimensionMatches(f.Organizations, organizationID)
}

// ConstrainedUsers returns the specific users the filter names, or nil when
// the user dimension is unconstrained.
func (f AppliesTo) ConstrainedUsers() []string {
	out := make([]string, 0, len(f.Users))
	for _, v := range f.Users {
		v = strings.TrimSpace(v)
		if v == appliesToAll {
			return nil
		}
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// BudgetLimit is an administrator-configured spending limit with
// progressive threshold actions.
type BudgetLimit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name         string       `gorm:"type:text;not null;uniqueIndex"` // Display name.
	AmountMicros int64        `gorm:"not null"`                       // Limit amount in micro-dollars.
	Period       BudgetPeriod `gorm:"type:text;not null;index"`       // Budget window type.

	ThresholdPercentages ThresholdList `gorm:"type:jsonb;not null;default:'[]'"` // Ascending alert thresholds.
	Actions              ActionMap     `gorm:"type:jsonb;not null;default:'{}'"` // Threshold-to-action map.
	AppliesTo            AppliesTo     `gorm:"type:jsonb;not null;default:'{}'"` // Applicability filter.

	IsActive bool `gorm:"not null;default:true"` // Whether the budget is enforced.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
