package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// 2024-01-01 is a Monday
func monday(hour, minute int) time.Time {
	return time.Date(2024, 1, 1, hour, minute, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q) failed: %v", s, err)
	}
	return tod
}

func managedSnapshot() CampaignSnapshot {
	return CampaignSnapshot{
		ID:            "c-1",
		Name:          "Spring sale",
		CurrentStatus: StatusActive,
		TargetStatus:  StatusActive,
		IsManaged:     true,
		SpendToday:    decimal.Zero,
	}
}

func TestManagementRule(t *testing.T) {
	rule := NewManagementRule()

	testCases := []struct {
		name       string
		managed    bool
		current    Status
		wantStatus Status
		wantNil    bool
	}{
		{"Managed abstains", true, StatusActive, "", true},
		{"Unmanaged active stays active", false, StatusActive, StatusActive, false},
		{"Unmanaged paused stays paused", false, StatusPaused, StatusPaused, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap := managedSnapshot()
			snap.IsManaged = tc.managed
			snap.CurrentStatus = tc.current

			decision, err := rule.Evaluate(snap, nil, monday(10, 0))
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if tc.wantNil {
				if decision != nil {
					t.Errorf("Evaluate() = %+v, want abstain", decision)
				}
				return
			}
			if decision == nil {
				t.Fatal("Evaluate() abstained, want a decision")
			}
			if decision.Status != tc.wantStatus {
				t.Errorf("Status = %s, want %s", decision.Status, tc.wantStatus)
			}
			if decision.Details == "" {
				t.Error("Details should not be empty")
			}
		})
	}
}

func TestManagementRuleRejectsInvalidStatus(t *testing.T) {
	snap := managedSnapshot()
	snap.IsManaged = false
	snap.CurrentStatus = "running"

	decision, err := NewManagementRule().Evaluate(snap, nil, monday(10, 0))
	if err == nil {
		t.Fatalf("Evaluate() = %+v, want an error for an invalid current status", decision)
	}
	if !strings.Contains(err.Error(), "running") {
		t.Errorf("error = %v, want it to name the status", err)
	}
}

func TestScheduleRule(t *testing.T) {
	rule := NewScheduleRule()

	workday := []ScheduleSlot{{DayOfWeek: 0, StartTime: mustTime(t, "09:00"), EndTime: mustTime(t, "18:00")}}

	testCases := []struct {
		name        string
		enabled     bool
		slots       []ScheduleSlot
		now         time.Time
		wantPaused  bool
		wantDetails string
	}{
		{"Disabled schedule abstains", false, nil, monday(22, 0), false, ""},
		{"Enabled without slots pauses", true, nil, monday(10, 0), true, "no schedule"},
		{"Inside window abstains", true, workday, monday(10, 0), false, ""},
		{"Window start is inclusive", true, workday, monday(9, 0), false, ""},
		{"Window end is inclusive", true, workday, monday(18, 0), false, ""},
		{"Half a second past window end pauses", true, workday, monday(18, 0).Add(500 * time.Millisecond), true, "outside every active window"},
		{"Sub-second instant inside window abstains", true, workday, monday(9, 0).Add(500 * time.Millisecond), false, ""},
		{"After window pauses", true, workday, monday(22, 0), true, "outside every active window"},
		{"Before window pauses", true, workday, monday(8, 59), true, "outside every active window"},
		{"No slot today pauses", true, workday, monday(10, 0).AddDate(0, 0, 1), true, "no active slots for today"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap := managedSnapshot()
			snap.ScheduleEnabled = tc.enabled

			decision, err := rule.Evaluate(snap, tc.slots, tc.now)
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if !tc.wantPaused {
				if decision != nil {
					t.Errorf("Evaluate() = %+v, want abstain", decision)
				}
				return
			}
			if decision == nil || decision.Status != StatusPaused {
				t.Fatalf("Evaluate() = %+v, want paused", decision)
			}
			if !strings.Contains(decision.Details, tc.wantDetails) {
				t.Errorf("Details = %q, want it to mention %q", decision.Details, tc.wantDetails)
			}
		})
	}
}

func TestScheduleRuleMultipleSlots(t *testing.T) {
	rule := NewScheduleRule()
	snap := managedSnapshot()
	snap.ScheduleEnabled = true

	slots := []ScheduleSlot{
		{DayOfWeek: 0, StartTime: mustTime(t, "06:00"), EndTime: mustTime(t, "08:00")},
		{DayOfWeek: 0, StartTime: mustTime(t, "20:00"), EndTime: mustTime(t, "23:00")},
		{DayOfWeek: 3, StartTime: mustTime(t, "00:00"), EndTime: mustTime(t, "23:59")},
	}

	decision, err := rule.Evaluate(snap, slots, monday(21, 30))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if decision != nil {
		t.Errorf("Evaluate() = %+v, want abstain inside the second slot", decision)
	}

	decision, err = rule.Evaluate(snap, slots, monday(12, 0))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if decision == nil || decision.Status != StatusPaused {
		t.Errorf("Evaluate() = %+v, want paused between slots", decision)
	}
}

func TestStockRule(t *testing.T) {
	rule := NewStockRule()

	testCases := []struct {
		name       string
		left       *int
		min        *int
		wantPaused bool
	}{
		{"No threshold abstains", intPtr(1), nil, false},
		{"Unknown stock abstains", nil, intPtr(5), false},
		{"Below threshold pauses", intPtr(3), intPtr(5), true},
		{"At threshold abstains", intPtr(5), intPtr(5), false},
		{"Above threshold abstains", intPtr(10), intPtr(5), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap := managedSnapshot()
			snap.StockDaysLeft = tc.left
			snap.StockDaysMin = tc.min

			decision, err := rule.Evaluate(snap, nil, monday(10, 0))
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if got := decision != nil; got != tc.wantPaused {
				t.Fatalf("Evaluate() decided = %v, want %v", got, tc.wantPaused)
			}
			if tc.wantPaused && decision.Status != StatusPaused {
				t.Errorf("Status = %s, want paused", decision.Status)
			}
		})
	}
}

func TestBudgetRule(t *testing.T) {
	rule := NewBudgetRule()

	testCases := []struct {
		name       string
		limit      *decimal.Decimal
		spend      string
		wantPaused bool
	}{
		{"No limit abstains", nil, "999999.00", false},
		{"Over limit pauses", decPtr("1000.00"), "1500.00", true},
		{"Exactly at limit abstains", decPtr("1000.00"), "1000.00", false},
		{"One cent over pauses", decPtr("1000.00"), "1000.01", true},
		{"Under limit abstains", decPtr("1000.00"), "0", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			snap := managedSnapshot()
			snap.BudgetLimit = tc.limit
			snap.SpendToday = decimal.RequireFromString(tc.spend)

			decision, err := rule.Evaluate(snap, nil, monday(10, 0))
			if err != nil {
				t.Fatalf("Evaluate() failed: %v", err)
			}
			if got := decision != nil; got != tc.wantPaused {
				t.Fatalf("Evaluate() decided = %v, want %v", got, tc.wantPaused)
			}
			if tc.wantPaused && !strings.Contains(decision.Details, "1000.00") {
				t.Errorf("Details = %q, want it to mention the limit", decision.Details)
			}
		})
	}
}

func TestBuiltinRuleNamesAndPriorities(t *testing.T) {
	want := []RuleInfo{
		{Name: "management_disabled", Priority: 1},
		{Name: "schedule", Priority: 2},
		{Name: "low_stock", Priority: 3},
		{Name: "budget_exceeded", Priority: 4},
	}

	for i, rule := range BuiltinRules() {
		if rule.Name() != want[i].Name || rule.Priority() != want[i].Priority {
			t.Errorf("rule %d = %s(%d), want %s(%d)", i, rule.Name(), rule.Priority(), want[i].Name, want[i].Priority)
		}
	}
}
