package rules

import "time"

// BudgetRule pauses campaigns that spent more than their daily limit.
// Spend equal to the limit is still allowed.
type BudgetRule struct{}

func NewBudgetRule() *BudgetRule { return &BudgetRule{} }

func (BudgetRule) Name() string  { return "budget_exceeded" }
func (BudgetRule) Priority() int { return 4 }

func (BudgetRule) Evaluate(snapshot CampaignSnapshot, _ []ScheduleSlot, _ time.Time) (*Decision, error) {
	if snapshot.BudgetLimit == nil {
		return nil, nil
	}

	if snapshot.SpendToday.GreaterThan(*snapshot.BudgetLimit) {
		return paused("spend today %s exceeds the daily limit of %s",
			snapshot.SpendToday.StringFixed(2), snapshot.BudgetLimit.StringFixed(2)), nil
	}
	return nil, nil
}
