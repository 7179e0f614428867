package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/campaignrules/campaigns"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/rules"
)

var (
	// ErrCampaignNotFound is returned when the campaign to evaluate does not exist
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrEvaluationFailed wraps every other failure of an evaluation
	ErrEvaluationFailed = errors.New("evaluation failed")
)

const defaultWorkers = 4

// Recorder receives evaluation metrics
type Recorder interface {
	ObserveEvaluation(rule string, status rules.Status, dryRun bool, elapsed time.Duration)
	ObserveFailure(stage string)
	ObserveBatch(campaigns int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEvaluation(string, rules.Status, bool, time.Duration) {}
func (nopRecorder) ObserveFailure(string)                                       {}
func (nopRecorder) ObserveBatch(int)                                            {}

// Outcome is the result of evaluating one campaign
type Outcome struct {
	CampaignID     string       `json:"campaign_id"`
	CampaignName   string       `json:"campaign_name"`
	CurrentStatus  rules.Status `json:"current_status"`
	PreviousTarget rules.Status `json:"previous_target_status"`
	NewTarget      rules.Status `json:"new_target_status"`
	NeedsSync      bool         `json:"needs_sync"`
	TriggeredRule  *string      `json:"triggered_rule"`
	Details        string       `json:"rule_details"`
	RulesChecked   []string     `json:"rules_checked"`
	DryRun         bool         `json:"dry_run"`
	LogEntryID     string       `json:"log_entry_id,omitempty"`
	EvaluatedAt    time.Time    `json:"evaluated_at"`
}

// BatchItem is one campaign of a batch run: either an outcome or an error
type BatchItem struct {
	CampaignID   string   `json:"campaign_id"`
	CampaignName string   `json:"campaign_name"`
	Success      bool     `json:"success"`
	Outcome      *Outcome `json:"outcome,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// BatchOutcome aggregates a run over every managed campaign
type BatchOutcome struct {
	Evaluated    int         `json:"evaluated_count"`
	Failed       int         `json:"failed_count"`
	TotalManaged int         `json:"total_managed"`
	NeedsSync    int         `json:"needs_sync_count"`
	DryRun       bool        `json:"dry_run"`
	EvaluatedAt  time.Time   `json:"evaluated_at"`
	Results      []BatchItem `json:"results"`
}

// Service loads campaigns, runs them through the rule engine and records the verdicts
type Service struct {
	engine   *rules.Engine
	store    campaigns.Store
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	location *time.Location
	workers  int
	limits   contextLimits
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock used when no evaluation time is given
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone schedule windows are interpreted in
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

// WithWorkers bounds the number of concurrent evaluations of a batch run
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates an evaluation service
func NewService(engine *rules.Engine, store campaigns.Store, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		store:    store,
		logger:   logger.Logger.With("component", "evaluation"),
		recorder: nopRecorder{},
		now:      time.Now,
		location: time.UTC,
		workers:  defaultWorkers,
		limits:   defaultContextLimits,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules describes the rule chain in evaluation order
func (s *Service) Rules() []rules.RuleInfo {
	return s.engine.Rules()
}

// EvaluateCampaign computes the target status of one campaign at the given
// instant (zero means now). Unless dryRun is set the verdict is written to
// the audit trail and the target status is updated when it changed.
func (s *Service) EvaluateCampaign(ctx context.Context, id string, at time.Time, dryRun bool) (*Outcome, error) {
	at = s.resolveTime(at)

	c, err := s.store.GetCampaign(ctx, id)
	if errors.Is(err, campaigns.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}
	if err != nil {
		s.recorder.ObserveFailure("load")
		return nil, fmt.Errorf("%w: campaign %s: %w", ErrEvaluationFailed, id, err)
	}

	return s.evaluate(ctx, c, at, dryRun)
}

// EvaluateAll evaluates every managed campaign with one shared instant. A
// failing campaign becomes an error item and does not stop the others.
func (s *Service) EvaluateAll(ctx context.Context, at time.Time, dryRun bool) (*BatchOutcome, error) {
	at = s.resolveTime(at)

	managed := true
	list, total, err := s.store.ListCampaigns(ctx, campaigns.CampaignFilter{IsManaged: &managed})
	if err != nil {
		s.recorder.ObserveFailure("load")
		return nil, fmt.Errorf("%w: failed to list managed campaigns: %w", ErrEvaluationFailed, err)
	}

	items := make([]BatchItem, len(list))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, c := range list {
		i, c := i, c
		g.Go(func() error {
			items[i] = s.evaluateItem(ctx, c, at, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchOutcome{
		TotalManaged: total,
		DryRun:       dryRun,
		EvaluatedAt:  at,
		Results:      items,
	}
	for _, item := range items {
		if !item.Success {
			batch.Failed++
			continue
		}
		batch.Evaluated++
		if item.Outcome.NeedsSync {
			batch.NeedsSync++
		}
	}

	s.recorder.ObserveBatch(len(list))
	s.logger.Info("batch evaluation finished",
		"evaluated", batch.Evaluated,
		"failed", batch.Failed,
		"needs_sync", batch.NeedsSync,
		"dry_run", dryRun,
	)

	return batch, nil
}

// History returns one page of the audit trail of a campaign, newest first,
// and the total number of entries
func (s *Service) History(ctx context.Context, id string, skip, limit int) ([]*campaigns.EvaluationLogEntry, int, error) {
	if _, err := s.store.GetCampaign(ctx, id); err != nil {
		if errors.Is(err, campaigns.ErrNotFound) {
			return nil, 0, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
		}
		return nil, 0, fmt.Errorf("failed to load campaign %s: %w", id, err)
	}

	logs, total, err := s.store.ListLogs(ctx, id, skip, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load evaluation history: %w", err)
	}
	return logs, total, nil
}

func (s *Service) evaluateItem(ctx context.Context, c *campaigns.Campaign, at time.Time, dryRun bool) (item BatchItem) {
	item = BatchItem{CampaignID: c.ID, CampaignName: c.Name}

	defer func() {
		if r := recover(); r != nil {
			s.recorder.ObserveFailure("panic")
			s.logger.Error("campaign evaluation panicked", "campaign_id", c.ID, "panic", r)
			item.Success = false
			item.Outcome = nil
			item.Error = fmt.Sprintf("%v: campaign %s: panic: %v", ErrEvaluationFailed, c.ID, r)
		}
	}()

	outcome, err := s.evaluate(ctx, c, at, dryRun)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.Success = true
	item.Outcome = outcome
	return item
}

func (s *Service) evaluate(ctx context.Context, c *campaigns.Campaign, at time.Time, dryRun bool) (*Outcome, error) {
	start := time.Now()
	log := s.logger.With("campaign_id", c.ID)

	slots, err := s.store.ListSlots(ctx, c.ID)
	if err != nil {
		s.recorder.ObserveFailure("load")
		return nil, fmt.Errorf("%w: campaign %s: failed to load schedule: %w", ErrEvaluationFailed, c.ID, err)
	}

	snapshot := c.Snapshot()
	result, err := s.engine.Evaluate(snapshot, slots, at)
	if err != nil {
		s.recorder.ObserveFailure("rules")
		log.Error("rule evaluation failed", "error", err)
		return nil, fmt.Errorf("%w: campaign %s: %w", ErrEvaluationFailed, c.ID, err)
	}

	outcome := &Outcome{
		CampaignID:     c.ID,
		CampaignName:   c.Name,
		CurrentStatus:  c.CurrentStatus,
		PreviousTarget: c.TargetStatus,
		NewTarget:      result.Status,
		NeedsSync:      result.Status != c.CurrentStatus,
		Details:        result.Details,
		RulesChecked:   result.RulesChecked,
		DryRun:         dryRun,
		EvaluatedAt:    at,
	}
	if result.Triggered() {
		name := result.TriggeredRule
		outcome.TriggeredRule = &name
	}

	if !dryRun {
		if err := s.persist(ctx, snapshot, slots, result, at, outcome); err != nil {
			log.Error("failed to record evaluation", "error", err)
			return nil, err
		}
	}

	s.recorder.ObserveEvaluation(result.TriggeredRule, result.Status, dryRun, time.Since(start))
	log.Debug("campaign evaluated",
		"triggered_rule", result.TriggeredRule,
		"previous_target", outcome.PreviousTarget,
		"new_target", outcome.NewTarget,
		"dry_run", dryRun,
	)
	if !dryRun && outcome.NewTarget != outcome.PreviousTarget {
		log.Info("target status changed",
			"from", outcome.PreviousTarget,
			"to", outcome.NewTarget,
			"triggered_rule", result.TriggeredRule,
		)
	}

	return outcome, nil
}

func (s *Service) persist(ctx context.Context, snapshot rules.CampaignSnapshot, slots []rules.ScheduleSlot, result *rules.EvaluationResult, at time.Time, outcome *Outcome) error {
	payload, err := s.limits.buildAuditContext(snapshot, slots, result, at)
	if err != nil {
		s.recorder.ObserveFailure("audit")
		return fmt.Errorf("%w: campaign %s: %w", ErrEvaluationFailed, snapshot.ID, err)
	}

	entry := &campaigns.EvaluationLogEntry{
		CampaignID:     snapshot.ID,
		TriggeredRule:  outcome.TriggeredRule,
		PreviousTarget: outcome.PreviousTarget,
		NewTarget:      outcome.NewTarget,
		Context:        payload,
	}

	updateTarget := outcome.NewTarget != outcome.PreviousTarget
	if err := s.store.RecordEvaluation(ctx, entry, updateTarget); err != nil {
		if errors.Is(err, campaigns.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrCampaignNotFound, snapshot.ID)
		}
		s.recorder.ObserveFailure("persist")
		return fmt.Errorf("%w: campaign %s: %w", ErrEvaluationFailed, snapshot.ID, err)
	}

	outcome.LogEntryID = entry.ID
	return nil
}

func (s *Service) resolveTime(at time.Time) time.Time {
	if at.IsZero() {
		at = s.now()
	}
	return at.In(s.location)
}
