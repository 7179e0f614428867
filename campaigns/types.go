package campaigns

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/campaignrules/rules"
)

// Campaign is an advertising campaign whose target status is driven by rules
type Campaign struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	CurrentStatus   rules.Status     `json:"current_status"`
	TargetStatus    rules.Status     `json:"target_status"`
	IsManaged       bool             `json:"is_managed"`
	BudgetLimit     *decimal.Decimal `json:"budget_limit"`
	SpendToday      decimal.Decimal  `json:"spend_today"`
	StockDaysLeft   *int             `json:"stock_days_left"`
	StockDaysMin    *int             `json:"stock_days_min"`
	ScheduleEnabled bool             `json:"schedule_enabled"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NeedsSync reports whether the current status differs from the target
func (c *Campaign) NeedsSync() bool {
	return c.CurrentStatus != c.TargetStatus
}

// ApplyDefaults fills in the defaults of a newly created campaign
func (c *Campaign) ApplyDefaults() {
	if c.CurrentStatus == "" {
		c.CurrentStatus = rules.StatusPaused
	}
	if c.TargetStatus == "" {
		c.TargetStatus = rules.StatusPaused
	}
}

// Snapshot builds the immutable view rules are evaluated against
func (c *Campaign) Snapshot() rules.CampaignSnapshot {
	snap := rules.CampaignSnapshot{
		ID:              c.ID,
		Name:            c.Name,
		CurrentStatus:   c.CurrentStatus,
		TargetStatus:    c.TargetStatus,
		IsManaged:       c.IsManaged,
		SpendToday:      c.SpendToday,
		ScheduleEnabled: c.ScheduleEnabled,
	}
	if c.BudgetLimit != nil {
		limit := *c.BudgetLimit
		snap.BudgetLimit = &limit
	}
	if c.StockDaysLeft != nil {
		left := *c.StockDaysLeft
		snap.StockDaysLeft = &left
	}
	if c.StockDaysMin != nil {
		threshold := *c.StockDaysMin
		snap.StockDaysMin = &threshold
	}
	return snap
}

func (c *Campaign) clone() *Campaign {
	cp := *c
	if c.BudgetLimit != nil {
		limit := *c.BudgetLimit
		cp.BudgetLimit = &limit
	}
	if c.StockDaysLeft != nil {
		left := *c.StockDaysLeft
		cp.StockDaysLeft = &left
	}
	if c.StockDaysMin != nil {
		threshold := *c.StockDaysMin
		cp.StockDaysMin = &threshold
	}
	return &cp
}

// CampaignFilter narrows campaign listings. Nil filters match everything;
// a zero Limit means no limit.
type CampaignFilter struct {
	IsManaged *bool
	NeedsSync *bool
	Skip      int
	Limit     int
}

func (f CampaignFilter) matches(c *Campaign) bool {
	if f.IsManaged != nil && c.IsManaged != *f.IsManaged {
		return false
	}
	if f.NeedsSync != nil && c.NeedsSync() != *f.NeedsSync {
		return false
	}
	return true
}

// EvaluationLogEntry is one immutable record of the audit trail
type EvaluationLogEntry struct {
	ID             string          `json:"id"`
	CampaignID     string          `json:"campaign_id"`
	TriggeredRule  *string         `json:"triggered_rule"`
	PreviousTarget rules.Status    `json:"previous_target"`
	NewTarget      rules.Status    `json:"new_target"`
	Context        json.RawMessage `json:"context"`
	CreatedAt      time.Time       `json:"created_at"`
}
