package campaigns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/liamcoop/campaignrules/rules"
)

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func TestInMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	c := newCampaign("Spring sale")
	c.BudgetLimit = decPtr("100.00")
	if err := store.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}
	if c.ID == "" {
		t.Fatal("CreateCampaign() should assign an ID")
	}
	if c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Errorf("timestamps not initialised: created=%v updated=%v", c.CreatedAt, c.UpdatedAt)
	}

	got, err := store.GetCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCampaign() failed: %v", err)
	}
	if got.Name != c.Name || got.BudgetLimit.StringFixed(2) != "100.00" {
		t.Errorf("GetCampaign() = %+v, want %+v", got, c)
	}

	// returned values are copies
	*got.BudgetLimit = *decPtr("1.00")
	again, _ := store.GetCampaign(ctx, c.ID)
	if again.BudgetLimit.StringFixed(2) != "100.00" {
		t.Error("mutating a returned campaign changed the store")
	}
}

func TestInMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if _, err := store.GetCampaign(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCampaign() error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateCampaign(ctx, &Campaign{ID: "missing", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateCampaign() error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteCampaign(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteCampaign() error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateTargetStatus(ctx, "missing", rules.StatusPaused); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTargetStatus() error = %v, want ErrNotFound", err)
	}
	if _, err := store.ReplaceSlots(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReplaceSlots() error = %v, want ErrNotFound", err)
	}
	if err := store.AppendLog(ctx, &EvaluationLogEntry{CampaignID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendLog() error = %v, want ErrNotFound", err)
	}
}

func TestInMemoryStoreDuplicateName(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	first := newCampaign("Spring sale")
	if err := store.CreateCampaign(ctx, first); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}
	if err := store.CreateCampaign(ctx, newCampaign("Spring sale")); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateCampaign() error = %v, want ErrConflict", err)
	}

	second := newCampaign("Summer sale")
	if err := store.CreateCampaign(ctx, second); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}
	second.Name = "Spring sale"
	if err := store.UpdateCampaign(ctx, second); !errors.Is(err, ErrConflict) {
		t.Errorf("UpdateCampaign() error = %v, want ErrConflict", err)
	}
}

func TestInMemoryStoreUpdatePreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	c := newCampaign("Spring sale")
	if err := store.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}
	created := c.CreatedAt

	update := *c
	update.CreatedAt = created.AddDate(-1, 0, 0)
	update.IsManaged = false
	if err := store.UpdateCampaign(ctx, &update); err != nil {
		t.Fatalf("UpdateCampaign() failed: %v", err)
	}

	got, _ := store.GetCampaign(ctx, c.ID)
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.IsManaged {
		t.Error("IsManaged was not updated")
	}
}

func TestInMemoryStoreListCampaigns(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for i := 0; i < 5; i++ {
		c := newCampaign(fmt.Sprintf("campaign-%d", i))
		c.IsManaged = i%2 == 0
		if i == 4 {
			c.TargetStatus = rules.StatusPaused
		}
		if err := store.CreateCampaign(ctx, c); err != nil {
			t.Fatalf("CreateCampaign() failed: %v", err)
		}
	}

	testCases := []struct {
		name      string
		filter    CampaignFilter
		wantNames []string
		wantTotal int
	}{
		{"All", CampaignFilter{}, []string{"campaign-0", "campaign-1", "campaign-2", "campaign-3", "campaign-4"}, 5},
		{"Page", CampaignFilter{Skip: 1, Limit: 2}, []string{"campaign-1", "campaign-2"}, 5},
		{"Skip past end", CampaignFilter{Skip: 10}, nil, 5},
		{"Managed only", CampaignFilter{IsManaged: boolPtr(true)}, []string{"campaign-0", "campaign-2", "campaign-4"}, 3},
		{"Unmanaged only", CampaignFilter{IsManaged: boolPtr(false)}, []string{"campaign-1", "campaign-3"}, 2},
		{"Needs sync", CampaignFilter{NeedsSync: boolPtr(true)}, []string{"campaign-4"}, 1},
		{"Managed in sync", CampaignFilter{IsManaged: boolPtr(true), NeedsSync: boolPtr(false)}, []string{"campaign-0", "campaign-2"}, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			list, total, err := store.ListCampaigns(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListCampaigns() failed: %v", err)
			}
			if total != tc.wantTotal {
				t.Errorf("total = %d, want %d", total, tc.wantTotal)
			}
			if len(list) != len(tc.wantNames) {
				t.Fatalf("ListCampaigns() returned %d campaigns, want %d", len(list), len(tc.wantNames))
			}
			for i, c := range list {
				if c.Name != tc.wantNames[i] {
					t.Errorf("list[%d] = %s, want %s", i, c.Name, tc.wantNames[i])
				}
			}
		})
	}
}

func TestInMemoryStoreSlots(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	c := newCampaign("Spring sale")
	if err := store.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}

	stored, err := store.ReplaceSlots(ctx, c.ID, []rules.ScheduleSlot{slot(t, 0, "09:00", "18:00"), slot(t, 1, "10:00", "12:00")})
	if err != nil {
		t.Fatalf("ReplaceSlots() failed: %v", err)
	}
	if len(stored) != 2 || stored[0].ID == "" {
		t.Fatalf("ReplaceSlots() = %+v, want two slots with IDs", stored)
	}

	got, _ := store.GetCampaign(ctx, c.ID)
	if !got.ScheduleEnabled {
		t.Error("a non-empty schedule should enable schedule management")
	}

	listed, err := store.ListSlots(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListSlots() failed: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("ListSlots() returned %d slots, want 2", len(listed))
	}

	if err := store.DeleteSlots(ctx, c.ID); err != nil {
		t.Fatalf("DeleteSlots() failed: %v", err)
	}
	got, _ = store.GetCampaign(ctx, c.ID)
	if got.ScheduleEnabled {
		t.Error("deleting the schedule should disable schedule management")
	}
	listed, _ = store.ListSlots(ctx, c.ID)
	if len(listed) != 0 {
		t.Errorf("ListSlots() after delete returned %d slots", len(listed))
	}
}

func TestInMemoryStoreRecordEvaluation(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	c := newCampaign("Spring sale")
	if err := store.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}

	rule := "budget_exceeded"
	for i, update := range []bool{true, false} {
		entry := &EvaluationLogEntry{
			CampaignID:     c.ID,
			TriggeredRule:  &rule,
			PreviousTarget: rules.StatusActive,
			NewTarget:      rules.StatusPaused,
			Context:        json.RawMessage(fmt.Sprintf(`{"run":%d}`, i)),
		}
		if err := store.RecordEvaluation(ctx, entry, update); err != nil {
			t.Fatalf("RecordEvaluation() failed: %v", err)
		}
		if entry.ID == "" || entry.CreatedAt.IsZero() {
			t.Errorf("RecordEvaluation() did not fill ID and CreatedAt: %+v", entry)
		}
	}

	got, _ := store.GetCampaign(ctx, c.ID)
	if got.TargetStatus != rules.StatusPaused {
		t.Errorf("TargetStatus = %s, want paused", got.TargetStatus)
	}

	logs, total, err := store.ListLogs(ctx, c.ID, 0, 100)
	if err != nil {
		t.Fatalf("ListLogs() failed: %v", err)
	}
	if len(logs) != 2 || total != 2 {
		t.Fatalf("ListLogs() returned %d entries of %d, want 2 of 2", len(logs), total)
	}
	if string(logs[0].Context) != `{"run":1}` {
		t.Errorf("ListLogs() should be newest first, got %s", logs[0].Context)
	}

	page, total, _ := store.ListLogs(ctx, c.ID, 1, 1)
	if len(page) != 1 || string(page[0].Context) != `{"run":0}` {
		t.Errorf("ListLogs(skip=1, limit=1) = %+v", page)
	}
	if total != 2 {
		t.Errorf("ListLogs(skip=1, limit=1) total = %d, want 2", total)
	}
}

func TestInMemoryStoreRecordEvaluationIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	c := newCampaign("Spring sale")
	if err := store.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}

	entry := &EvaluationLogEntry{CampaignID: c.ID, PreviousTarget: rules.StatusActive, NewTarget: "bogus"}
	if err := store.RecordEvaluation(ctx, entry, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("RecordEvaluation() error = %v, want ErrValidation", err)
	}

	logs, _, _ := store.ListLogs(ctx, c.ID, 0, 0)
	if len(logs) != 0 {
		t.Errorf("a failed evaluation left %d audit entries", len(logs))
	}
}

func TestInMemoryStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	c := newCampaign("Spring sale")
	if err := store.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}
	if _, err := store.ReplaceSlots(ctx, c.ID, []rules.ScheduleSlot{slot(t, 0, "09:00", "18:00")}); err != nil {
		t.Fatalf("ReplaceSlots() failed: %v", err)
	}
	if err := store.AppendLog(ctx, &EvaluationLogEntry{CampaignID: c.ID, PreviousTarget: rules.StatusActive, NewTarget: rules.StatusActive}); err != nil {
		t.Fatalf("AppendLog() failed: %v", err)
	}

	if err := store.DeleteCampaign(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCampaign() failed: %v", err)
	}

	slots, _ := store.ListSlots(ctx, c.ID)
	logs, _, _ := store.ListLogs(ctx, c.ID, 0, 0)
	if len(slots) != 0 || len(logs) != 0 {
		t.Errorf("delete left %d slots and %d logs behind", len(slots), len(logs))
	}
	_, total, _ := store.ListCampaigns(ctx, CampaignFilter{})
	if total != 0 {
		t.Errorf("ListCampaigns() total = %d after delete, want 0", total)
	}
}

func TestInMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	c := newCampaign("Spring sale")
	if err := store.CreateCampaign(ctx, c); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			entry := &EvaluationLogEntry{CampaignID: c.ID, PreviousTarget: rules.StatusActive, NewTarget: rules.StatusPaused}
			if err := store.RecordEvaluation(ctx, entry, true); err != nil {
				t.Errorf("RecordEvaluation() failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.GetCampaign(ctx, c.ID); err != nil {
				t.Errorf("GetCampaign() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	logs, _, _ := store.ListLogs(ctx, c.ID, 0, 0)
	if len(logs) != 50 {
		t.Errorf("ListLogs() returned %d entries, want 50", len(logs))
	}
}
