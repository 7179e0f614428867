package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/campaignrules/campaigns"
	"github.com/liamcoop/campaignrules/evaluation"
	"github.com/liamcoop/campaignrules/internal/app"
	"github.com/liamcoop/campaignrules/rules"
)

type fixture struct {
	store  *campaigns.InMemoryStore
	opener appOpener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := app.BuildEngine("")
	if err != nil {
		t.Fatalf("BuildEngine() failed: %v", err)
	}

	f := &fixture{store: campaigns.NewInMemoryStore()}
	f.opener = func(string) (*app.App, error) {
		return &app.App{
			Engine:  engine,
			Store:   f.store,
			Service: evaluation.NewService(engine, f.store),
		}, nil
	}
	return f
}

func (f *fixture) addCampaign(t *testing.T, name string, managed bool, spend string) string {
	t.Helper()
	limit := decimal.RequireFromString("100")
	c := &campaigns.Campaign{
		Name:          name,
		IsManaged:     managed,
		CurrentStatus: rules.StatusActive,
		TargetStatus:  rules.StatusActive,
		BudgetLimit:   &limit,
		SpendToday:    decimal.RequireFromString(spend),
	}
	if err := f.store.CreateCampaign(context.Background(), c); err != nil {
		t.Fatalf("CreateCampaign() failed: %v", err)
	}
	return c.ID
}

func run(t *testing.T, open appOpener, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEvaluateDryRun(t *testing.T) {
	f := newFixture(t)
	id := f.addCampaign(t, "over budget", true, "150")

	out, err := run(t, f.opener, "evaluate", id, "--dry-run", "--at", "2024-01-01T12:00:00Z")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	var outcome evaluation.Outcome
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("output is not an outcome: %v\n%s", err, out)
	}
	if outcome.NewTarget != rules.StatusPaused || outcome.TriggeredRule == nil || *outcome.TriggeredRule != "budget_exceeded" {
		t.Errorf("outcome = %+v", outcome)
	}

	stored, err := f.store.GetCampaign(context.Background(), id)
	if err != nil {
		t.Fatalf("GetCampaign() failed: %v", err)
	}
	if stored.TargetStatus != rules.StatusActive {
		t.Errorf("dry run changed the target to %s", stored.TargetStatus)
	}
}

func TestEvaluateAllPersists(t *testing.T) {
	f := newFixture(t)
	over := f.addCampaign(t, "over budget", true, "150")
	f.addCampaign(t, "within budget", true, "50")
	f.addCampaign(t, "manual", false, "150")

	out, err := run(t, f.opener, "evaluate", "--all")
	if err != nil {
		t.Fatalf("evaluate --all failed: %v", err)
	}

	var batch evaluation.BatchOutcome
	if err := json.Unmarshal([]byte(out), &batch); err != nil {
		t.Fatalf("output is not a batch outcome: %v\n%s", err, out)
	}
	if batch.TotalManaged != 2 || batch.Evaluated != 2 || batch.NeedsSync != 1 {
		t.Errorf("batch = %+v", batch)
	}

	out, err = run(t, f.opener, "history", over, "--limit", "5")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var page struct {
		CampaignID string                         `json:"campaign_id"`
		Entries    []campaigns.EvaluationLogEntry `json:"entries"`
		Total      int                            `json:"total"`
	}
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("output is not a history: %v\n%s", err, out)
	}
	if page.CampaignID != over || page.Total != 1 {
		t.Errorf("history header = %s/%d, want %s/1", page.CampaignID, page.Total, over)
	}
	if len(page.Entries) != 1 || page.Entries[0].NewTarget != rules.StatusPaused {
		t.Errorf("history = %+v", page.Entries)
	}
}

func TestEvaluateArguments(t *testing.T) {
	f := newFixture(t)

	testCases := []struct {
		name string
		args []string
	}{
		{"Neither id nor all", []string{"evaluate"}},
		{"Both id and all", []string{"evaluate", "c-1", "--all"}},
		{"Bad timestamp", []string{"evaluate", "--all", "--at", "noon"}},
		{"History without id", []string{"history"}},
		{"History bad limit", []string{"history", "c-1", "--limit", "0"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := run(t, f.opener, tc.args...); err == nil {
				t.Errorf("%v should fail", tc.args)
			}
		})
	}
}

func TestEvaluateUnknownCampaign(t *testing.T) {
	f := newFixture(t)

	_, err := run(t, f.opener, "evaluate", "missing")
	if !errors.Is(err, evaluation.ErrCampaignNotFound) {
		t.Errorf("error = %v, want ErrCampaignNotFound", err)
	}
}

func TestRulesCommand(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, f.opener, "rules")
	if err != nil {
		t.Fatalf("rules failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("rules printed %d lines, want a header and 4 rules:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "1") || !strings.Contains(lines[1], "management_disabled") {
		t.Errorf("first rule line = %q", lines[1])
	}
	if !strings.Contains(lines[4], "budget_exceeded") {
		t.Errorf("last rule line = %q", lines[4])
	}
}

func TestOpenerErrorsAreReturned(t *testing.T) {
	failing := func(string) (*app.App, error) { return nil, errors.New("no database") }

	if _, err := run(t, failing, "rules"); err == nil || err.Error() != "no database" {
		t.Errorf("error = %v, want the opener error", err)
	}
}
