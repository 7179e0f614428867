package rules

import (
	"fmt"
	"time"
)

// Rule is a single prioritized decision unit of the chain.
//
// Evaluate returns a nil Decision to abstain, deferring to lower-priority
// rules. A non-nil Decision is definitive and stops the chain. Errors are
// reserved for malformed input and abort the evaluation of that campaign.
// Implementations must not keep per-evaluation state, so one instance can be
// shared by concurrent evaluations.
type Rule interface {
	Name() string
	Priority() int
	Evaluate(snapshot CampaignSnapshot, slots []ScheduleSlot, now time.Time) (*Decision, error)
}

// RuleError is returned by the engine when a rule fails to evaluate
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s failed: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

func paused(format string, args ...any) *Decision {
	return &Decision{Status: StatusPaused, Details: fmt.Sprintf(format, args...)}
}
