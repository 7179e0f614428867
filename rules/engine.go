package rules

import (
	"fmt"
	"time"
)

// NoRestrictionsDetails is reported when every rule abstains
const NoRestrictionsDetails = "no restrictions"

// Engine walks a priority-ordered rule chain and returns the first verdict.
// The chain is fixed at construction, so an Engine is safe for concurrent use.
type Engine struct {
	rules []Rule
}

// NewEngine builds an engine from the rules held by the registry.
// The priority order is validated once here; an invalid chain is fatal.
func NewEngine(registry *Registry) (*Engine, error) {
	rules, err := registry.Rules()
	if err != nil {
		return nil, err
	}
	return NewEngineWithRules(rules)
}

// NewEngineWithRules creates an engine over an explicit, already ordered rule
// list. Priorities must be strictly increasing.
func NewEngineWithRules(rules []Rule) (*Engine, error) {
	chain := make([]Rule, len(rules))
	copy(chain, rules)

	if err := validateOrder(chain); err != nil {
		return nil, err
	}

	return &Engine{rules: chain}, nil
}

// validateOrder checks adjacent pairs; the chain is expected to be sorted
func validateOrder(rules []Rule) error {
	names := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		if rule == nil {
			return fmt.Errorf("%w: rule at position %d is nil", ErrInvalidConfiguration, i)
		}
		if _, dup := names[rule.Name()]; dup {
			return fmt.Errorf("%w: duplicate rule name %q", ErrInvalidConfiguration, rule.Name())
		}
		names[rule.Name()] = struct{}{}

		if i == 0 {
			continue
		}
		prev := rules[i-1]
		if rule.Priority() <= prev.Priority() {
			return fmt.Errorf("%w: rules are not sorted by priority: %s(%d) -> %s(%d)",
				ErrInvalidConfiguration, prev.Name(), prev.Priority(), rule.Name(), rule.Priority())
		}
	}
	return nil
}

// Evaluate runs the chain against a campaign snapshot. The first rule that
// returns a decision wins; when all rules abstain the campaign is active.
func (en *Engine) Evaluate(snapshot CampaignSnapshot, slots []ScheduleSlot, now time.Time) (*EvaluationResult, error) {
	checked := make([]string, 0, len(en.rules))

	for _, rule := range en.rules {
		checked = append(checked, rule.Name())

		decision, err := rule.Evaluate(snapshot, slots, now)
		if err != nil {
			return nil, &RuleError{Rule: rule.Name(), Err: err}
		}
		if decision == nil {
			continue
		}

		return &EvaluationResult{
			Status:        decision.Status,
			TriggeredRule: rule.Name(),
			Details:       decision.Details,
			RulesChecked:  checked,
		}, nil
	}

	return &EvaluationResult{
		Status:       StatusActive,
		Details:      NoRestrictionsDetails,
		RulesChecked: checked,
	}, nil
}

// Rules describes the chain in evaluation order
func (en *Engine) Rules() []RuleInfo {
	infos := make([]RuleInfo, 0, len(en.rules))
	for _, rule := range en.rules {
		infos = append(infos, RuleInfo{Name: rule.Name(), Priority: rule.Priority()})
	}
	return infos
}
