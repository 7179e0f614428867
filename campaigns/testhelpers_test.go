package campaigns

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/campaignrules/rules"
)

func intPtr(v int) *int { return &v }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func boolPtr(v bool) *bool { return &v }

func newCampaign(name string) *Campaign {
	return &Campaign{
		Name:          name,
		CurrentStatus: rules.StatusActive,
		TargetStatus:  rules.StatusActive,
		IsManaged:     true,
		SpendToday:    decimal.Zero,
	}
}

func slot(t *testing.T, day int, start, end string) rules.ScheduleSlot {
	t.Helper()
	from, err := rules.ParseTimeOfDay(start)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q) failed: %v", start, err)
	}
	to, err := rules.ParseTimeOfDay(end)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q) failed: %v", end, err)
	}
	return rules.ScheduleSlot{DayOfWeek: day, StartTime: from, EndTime: to}
}
