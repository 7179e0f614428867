package main

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/campaignrules/campaigns"
	"github.com/liamcoop/campaignrules/evaluation"
	"github.com/liamcoop/campaignrules/rules"
)

// API request and response models

// Nullable distinguishes an absent JSON field from an explicit null
type Nullable[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Null = true
		return nil
	}
	return json.Unmarshal(data, &n.Value)
}

// CreateCampaignRequest represents the request body for creating a campaign
type CreateCampaignRequest struct {
	Name            string           `json:"name"`
	CurrentStatus   rules.Status     `json:"current_status,omitempty"`
	TargetStatus    rules.Status     `json:"target_status,omitempty"`
	IsManaged       bool             `json:"is_managed"`
	BudgetLimit     *decimal.Decimal `json:"budget_limit,omitempty"`
	SpendToday      *decimal.Decimal `json:"spend_today,omitempty"`
	StockDaysLeft   *int             `json:"stock_days_left,omitempty"`
	StockDaysMin    *int             `json:"stock_days_min,omitempty"`
	ScheduleEnabled bool             `json:"schedule_enabled"`
}

func (req *CreateCampaignRequest) campaign() *campaigns.Campaign {
	c := &campaigns.Campaign{
		Name:            req.Name,
		CurrentStatus:   req.CurrentStatus,
		TargetStatus:    req.TargetStatus,
		IsManaged:       req.IsManaged,
		BudgetLimit:     req.BudgetLimit,
		StockDaysLeft:   req.StockDaysLeft,
		StockDaysMin:    req.StockDaysMin,
		ScheduleEnabled: req.ScheduleEnabled,
	}
	if req.SpendToday != nil {
		c.SpendToday = *req.SpendToday
	}
	c.ApplyDefaults()
	return c
}

// UpdateCampaignRequest represents a partial campaign update. Absent fields
// are left alone; null clears an optional field.
type UpdateCampaignRequest struct {
	Name            *string                   `json:"name,omitempty"`
	CurrentStatus   *rules.Status             `json:"current_status,omitempty"`
	TargetStatus    *rules.Status             `json:"target_status,omitempty"`
	IsManaged       *bool                     `json:"is_managed,omitempty"`
	BudgetLimit     Nullable[decimal.Decimal] `json:"budget_limit"`
	SpendToday      *decimal.Decimal          `json:"spend_today,omitempty"`
	StockDaysLeft   Nullable[int]             `json:"stock_days_left"`
	StockDaysMin    Nullable[int]             `json:"stock_days_min"`
	ScheduleEnabled *bool                     `json:"schedule_enabled,omitempty"`
}

func (req *UpdateCampaignRequest) apply(c *campaigns.Campaign) {
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.CurrentStatus != nil {
		c.CurrentStatus = *req.CurrentStatus
	}
	if req.TargetStatus != nil {
		c.TargetStatus = *req.TargetStatus
	}
	if req.IsManaged != nil {
		c.IsManaged = *req.IsManaged
	}
	if req.SpendToday != nil {
		c.SpendToday = *req.SpendToday
	}
	if req.ScheduleEnabled != nil {
		c.ScheduleEnabled = *req.ScheduleEnabled
	}
	c.BudgetLimit = applyNullable(req.BudgetLimit, c.BudgetLimit)
	c.StockDaysLeft = applyNullable(req.StockDaysLeft, c.StockDaysLeft)
	c.StockDaysMin = applyNullable(req.StockDaysMin, c.StockDaysMin)
}

func applyNullable[T any](field Nullable[T], current *T) *T {
	switch {
	case !field.Set:
		return current
	case field.Null:
		return nil
	default:
		v := field.Value
		return &v
	}
}

// CampaignResponse represents a campaign in API responses
type CampaignResponse struct {
	*campaigns.Campaign
	NeedsSync bool `json:"needs_sync"`
}

func newCampaignResponse(c *campaigns.Campaign) CampaignResponse {
	return CampaignResponse{Campaign: c, NeedsSync: c.NeedsSync()}
}

// CampaignsListResponse represents one page of campaigns
type CampaignsListResponse struct {
	Campaigns []CampaignResponse `json:"campaigns"`
	Total     int                `json:"total"`
	Skip      int                `json:"skip"`
	Limit     int                `json:"limit"`
}

// ScheduleRequest represents the request body for replacing a schedule
type ScheduleRequest struct {
	Slots []rules.ScheduleSlot `json:"slots"`
}

// ScheduleResponse represents the weekly schedule of a campaign
type ScheduleResponse struct {
	CampaignID      string               `json:"campaign_id"`
	ScheduleEnabled bool                 `json:"schedule_enabled"`
	Slots           []rules.ScheduleSlot `json:"slots"`
}

// RulesListResponse represents the evaluation chain in priority order
type RulesListResponse struct {
	Rules []rules.RuleInfo `json:"rules"`
}

// EvaluateResponse represents the outcome of evaluating one campaign
type EvaluateResponse = evaluation.Outcome

// EvaluateAllResponse represents the outcome of a batch run
type EvaluateAllResponse = evaluation.BatchOutcome

// HistoryResponse represents a page of the audit trail, newest first
type HistoryResponse struct {
	CampaignID string                          `json:"campaign_id"`
	Entries    []*campaigns.EvaluationLogEntry `json:"entries"`
	Total      int                             `json:"total"`
	Skip       int                             `json:"skip"`
	Limit      int                             `json:"limit"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string    `json:"status"`
	Store  string    `json:"store"`
	Rules  int       `json:"rules"`
	Time   time.Time `json:"time"`
	Error  string    `json:"error,omitempty"`
}
