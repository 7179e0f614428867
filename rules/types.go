package rules

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the operational status of a campaign
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// ParseStatus converts a string into a Status, case-insensitively
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusPaused:
		return StatusPaused, nil
	default:
		return "", fmt.Errorf("unknown status %q (must be one of: active, paused)", s)
	}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusPaused
}

func (s Status) String() string {
	return string(s)
}

// TimeOfDay is a local wall-clock time with second precision, stored as
// seconds since midnight.
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

// NewTimeOfDay builds a TimeOfDay from its components
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("invalid time of day %02d:%02d:%02d", hour, minute, second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// TimeOfDayOf extracts the wall-clock time of t in its own location
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q (expected HH:MM or HH:MM:SS)", s)
}

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Scan implements sql.Scanner. PostgreSQL TIME columns arrive either as
// time.Time (lib/pq) or as text.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = TimeOfDayOf(v)
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

func (t *TimeOfDay) scanString(s string) error {
	// drop fractional seconds, e.g. "09:00:00.000000"
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

// ScheduleSlot is one weekly activity window of a campaign.
// DayOfWeek uses 0 = Monday ... 6 = Sunday.
type ScheduleSlot struct {
	ID        string    `json:"id,omitempty"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime TimeOfDay `json:"start_time"`
	EndTime   TimeOfDay `json:"end_time"`
}

// Contains reports whether tod falls inside [StartTime, EndTime], both ends inclusive
func (s ScheduleSlot) Contains(tod TimeOfDay) bool {
	return s.StartTime <= tod && tod <= s.EndTime
}

// ContainsTime is Contains at full clock precision: an instant past EndTime
// by less than a second is outside the slot
func (s ScheduleSlot) ContainsTime(t time.Time) bool {
	tod := TimeOfDayOf(t)
	if tod == s.EndTime && t.Nanosecond() > 0 {
		return false
	}
	return s.Contains(tod)
}

// Weekday converts a time.Weekday (Sunday = 0) to the Monday-based index used by slots
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// CampaignSnapshot is the read-only view of a campaign that rules evaluate.
// It is passed by value and never mutated during an evaluation.
type CampaignSnapshot struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	CurrentStatus   Status           `json:"current_status"`
	TargetStatus    Status           `json:"target_status"`
	IsManaged       bool             `json:"is_managed"`
	BudgetLimit     *decimal.Decimal `json:"budget_limit"`
	SpendToday      decimal.Decimal  `json:"spend_today"`
	StockDaysLeft   *int             `json:"stock_days_left"`
	StockDaysMin    *int             `json:"stock_days_min"`
	ScheduleEnabled bool             `json:"schedule_enabled"`
}

// Decision is a definitive verdict produced by a rule together with its explanation
type Decision struct {
	Status  Status
	Details string
}

// EvaluationResult is the outcome of walking the rule chain for one campaign
type EvaluationResult struct {
	Status        Status   `json:"status"`
	TriggeredRule string   `json:"triggered_rule,omitempty"` // empty when no rule fired
	Details       string   `json:"details"`
	RulesChecked  []string `json:"rules_checked"`
}

// Triggered reports whether any rule produced the verdict
func (r *EvaluationResult) Triggered() bool {
	return r.TriggeredRule != ""
}

// RuleInfo describes one link of the rule chain
type RuleInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}
