package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/liamcoop/campaignrules/rules"
)

const truncationMarker = "..."

// ErrContextTooLarge is returned when the serialized audit context is over the size cap
var ErrContextTooLarge = errors.New("audit context too large")

// contextLimits caps the audit context, in characters
type contextLimits struct {
	maxString int
	maxTotal  int
}

var defaultContextLimits = contextLimits{maxString: 10000, maxTotal: 100000}

// auditContext is the JSON blob stored with every evaluation log entry
type auditContext struct {
	Campaign      auditCampaign `json:"campaign"`
	Schedule      []auditSlot   `json:"schedule"`
	Verdict       rules.Status  `json:"verdict"`
	TriggeredRule string        `json:"triggered_rule,omitempty"`
	Details       string        `json:"details"`
	RulesChecked  []string      `json:"rules_checked"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
	Weekday       int           `json:"weekday"`
	LocalTime     string        `json:"local_time"`
}

type auditCampaign struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	CurrentStatus   rules.Status `json:"current_status"`
	TargetStatus    rules.Status `json:"target_status"`
	IsManaged       bool         `json:"is_managed"`
	BudgetLimit     *string      `json:"budget_limit"`
	SpendToday      string       `json:"spend_today"`
	StockDaysLeft   *int         `json:"stock_days_left"`
	StockDaysMin    *int         `json:"stock_days_min"`
	ScheduleEnabled bool         `json:"schedule_enabled"`
}

type auditSlot struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// buildAuditContext serializes the snapshot, the schedule and the decision.
// Strings longer than limits.maxString are cut and suffixed with "...".
func (limits contextLimits) buildAuditContext(snapshot rules.CampaignSnapshot, slots []rules.ScheduleSlot, result *rules.EvaluationResult, at time.Time) (json.RawMessage, error) {
	campaign := auditCampaign{
		ID:              limits.truncate(snapshot.ID),
		Name:            limits.truncate(snapshot.Name),
		CurrentStatus:   rules.Status(limits.truncate(string(snapshot.CurrentStatus))),
		TargetStatus:    rules.Status(limits.truncate(string(snapshot.TargetStatus))),
		IsManaged:       snapshot.IsManaged,
		SpendToday:      snapshot.SpendToday.StringFixed(2),
		StockDaysLeft:   snapshot.StockDaysLeft,
		StockDaysMin:    snapshot.StockDaysMin,
		ScheduleEnabled: snapshot.ScheduleEnabled,
	}
	if snapshot.BudgetLimit != nil {
		limit := snapshot.BudgetLimit.StringFixed(2)
		campaign.BudgetLimit = &limit
	}

	schedule := make([]auditSlot, len(slots))
	for i, slot := range slots {
		schedule[i] = auditSlot{
			DayOfWeek: slot.DayOfWeek,
			StartTime: slot.StartTime.String(),
			EndTime:   slot.EndTime.String(),
		}
	}

	checked := make([]string, len(result.RulesChecked))
	for i, name := range result.RulesChecked {
		checked[i] = limits.truncate(name)
	}

	payload, err := json.Marshal(auditContext{
		Campaign:      campaign,
		Schedule:      schedule,
		Verdict:       result.Status,
		TriggeredRule: limits.truncate(result.TriggeredRule),
		Details:       limits.truncate(result.Details),
		RulesChecked:  checked,
		EvaluatedAt:   at,
		Weekday:       rules.Weekday(at),
		LocalTime:     rules.TimeOfDayOf(at).String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize audit context: %w", err)
	}

	if n := utf8.RuneCount(payload); n > limits.maxTotal {
		return nil, fmt.Errorf("%w: %d characters, maximum is %d", ErrContextTooLarge, n, limits.maxTotal)
	}
	return payload, nil
}

func (limits contextLimits) truncate(s string) string {
	if utf8.RuneCountInString(s) <= limits.maxString {
		return s
	}
	runes := []rune(s)
	return string(runes[:limits.maxString]) + truncationMarker
}
