package rules

import "time"

// StockRule pauses campaigns whose remaining stock would run out sooner than
// the configured minimum number of days.
type StockRule struct{}

func NewStockRule() *StockRule { return &StockRule{} }

func (StockRule) Name() string  { return "low_stock" }
func (StockRule) Priority() int { return 3 }

func (StockRule) Evaluate(snapshot CampaignSnapshot, _ []ScheduleSlot, _ time.Time) (*Decision, error) {
	if snapshot.StockDaysMin == nil {
		return nil, nil
	}

	// Unknown stock is treated as "no evidence of shortage". This is a
	// judgment call; a conservative policy would pause instead.
	if snapshot.StockDaysLeft == nil {
		return nil, nil
	}

	left, threshold := *snapshot.StockDaysLeft, *snapshot.StockDaysMin
	if left < threshold {
		return paused("stock will last %d days, below the minimum threshold of %d days", left, threshold), nil
	}
	return nil, nil
}
