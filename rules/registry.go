package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidConfiguration marks rule chain problems that must stop the
// service from starting: duplicate names, priority ties, bad expressions.
var ErrInvalidConfiguration = errors.New("invalid rule configuration")

// MaxRuleNameLength matches the width of the audit trail's triggered_rule column
const MaxRuleNameLength = 80

// Registry collects the rules that make up the evaluation chain.
// It is built once at startup; it is not safe for concurrent registration.
type Registry struct {
	rules []Rule
	names map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]struct{}),
	}
}

// DefaultRegistry returns a registry holding the built-in rules
func DefaultRegistry() (*Registry, error) {
	reg := NewRegistry()
	for _, rule := range BuiltinRules() {
		if err := reg.Register(rule); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// BuiltinRules returns fresh instances of the built-in rules
func BuiltinRules() []Rule {
	return []Rule{
		NewManagementRule(),
		NewScheduleRule(),
		NewStockRule(),
		NewBudgetRule(),
	}
}

// Register adds a rule to the registry. Rule names must be non-empty and unique.
func (r *Registry) Register(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule cannot be nil", ErrInvalidConfiguration)
	}

	name := rule.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: rule %T has an empty name", ErrInvalidConfiguration, rule)
	}
	if len(name) > MaxRuleNameLength {
		return fmt.Errorf("%w: rule name %.20q... exceeds %d characters", ErrInvalidConfiguration, name, MaxRuleNameLength)
	}

	if _, exists := r.names[name]; exists {
		return fmt.Errorf("%w: rule with name %q is already registered, rule names must be unique",
			ErrInvalidConfiguration, name)
	}

	r.names[name] = struct{}{}
	r.rules = append(r.rules, rule)
	return nil
}

// Len returns the number of registered rules
func (r *Registry) Len() int {
	return len(r.rules)
}

// Rules returns the registered rules sorted by ascending priority.
// Two rules sharing a priority make precedence ambiguous and are rejected.
func (r *Registry) Rules() ([]Rule, error) {
	sorted := make([]Rule, len(r.rules))
	copy(sorted, r.rules)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Priority() == sorted[i-1].Priority() {
			return nil, fmt.Errorf("%w: rules %q and %q share priority %d",
				ErrInvalidConfiguration, sorted[i-1].Name(), sorted[i].Name(), sorted[i].Priority())
		}
	}

	return sorted, nil
}
