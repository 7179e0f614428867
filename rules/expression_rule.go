package rules

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/cel-go/cel"
)

// expressionCostLimit caps the work a single expression may do per evaluation
const expressionCostLimit = 1000000

// Expression rule names are lower snake case so they read well in the audit trail
var ruleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ExpressionRule is an operator-defined rule backed by a CEL expression.
// When the expression evaluates to true the rule returns its configured
// verdict; false or a non-boolean result means the rule abstains.
//
// Expressions see the following variables:
//
//	campaign       map: id, name, current_status, target_status, is_managed,
//	               spend_today, schedule_enabled and, when set, budget_limit,
//	               stock_days_left, stock_days_min
//	now            timestamp of the evaluation
//	weekday        int, 0 = Monday
//	minute_of_day  int, minutes since local midnight
//	slots          list of maps: day_of_week, start_minute, end_minute
type ExpressionRule struct {
	name       string
	priority   int
	expression string
	verdict    Status
	details    string
	program    cel.Program
}

// NewExpressionEnv creates the CEL environment expression rules are compiled against
func NewExpressionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("campaign", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("now", cel.TimestampType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("minute_of_day", cel.IntType),
		cel.Variable("slots", cel.ListType(cel.MapType(cel.StringType, cel.DynType))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewExpressionRule compiles an expression rule. Compilation problems are
// configuration errors.
func NewExpressionRule(env *cel.Env, name string, priority int, expression string, verdict Status, details string) (*ExpressionRule, error) {
	if err := validateRuleName(name); err != nil {
		return nil, err
	}
	if !verdict.Valid() {
		return nil, fmt.Errorf("%w: expression rule %q has invalid verdict %q", ErrInvalidConfiguration, name, verdict)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: expression rule %q: compile error: %v", ErrInvalidConfiguration, name, issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression rule %q must evaluate to bool, got %s",
			ErrInvalidConfiguration, name, out)
	}

	prog, err := env.Program(ast, cel.CostLimit(expressionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: expression rule %q: program creation error: %v", ErrInvalidConfiguration, name, err)
	}

	if details == "" {
		details = fmt.Sprintf("expression rule %s matched", name)
	}

	return &ExpressionRule{
		name:       name,
		priority:   priority,
		expression: expression,
		verdict:    verdict,
		details:    details,
		program:    prog,
	}, nil
}

func validateRuleName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: expression rule name cannot be empty", ErrInvalidConfiguration)
	}
	if len(name) > MaxRuleNameLength {
		return fmt.Errorf("%w: expression rule name %.20q... exceeds %d characters", ErrInvalidConfiguration, name, MaxRuleNameLength)
	}
	if !ruleNamePattern.MatchString(name) {
		return fmt.Errorf("%w: expression rule name %q must match %s", ErrInvalidConfiguration, name, ruleNamePattern)
	}
	return nil
}

func (r *ExpressionRule) Name() string       { return r.name }
func (r *ExpressionRule) Priority() int      { return r.priority }
func (r *ExpressionRule) Expression() string { return r.expression }

func (r *ExpressionRule) Evaluate(snapshot CampaignSnapshot, slots []ScheduleSlot, now time.Time) (*Decision, error) {
	out, _, err := r.program.Eval(expressionActivation(snapshot, slots, now))
	if err != nil {
		return nil, fmt.Errorf("expression evaluation failed: %w", err)
	}

	matched, ok := out.Value().(bool)
	if !ok || !matched {
		return nil, nil
	}

	return &Decision{Status: r.verdict, Details: r.details}, nil
}

func expressionActivation(snapshot CampaignSnapshot, slots []ScheduleSlot, now time.Time) map[string]any {
	campaign := map[string]any{
		"id":               snapshot.ID,
		"name":             snapshot.Name,
		"current_status":   string(snapshot.CurrentStatus),
		"target_status":    string(snapshot.TargetStatus),
		"is_managed":       snapshot.IsManaged,
		"spend_today":      snapshot.SpendToday.InexactFloat64(),
		"schedule_enabled": snapshot.ScheduleEnabled,
	}
	if snapshot.BudgetLimit != nil {
		campaign["budget_limit"] = snapshot.BudgetLimit.InexactFloat64()
	}
	if snapshot.StockDaysLeft != nil {
		campaign["stock_days_left"] = int64(*snapshot.StockDaysLeft)
	}
	if snapshot.StockDaysMin != nil {
		campaign["stock_days_min"] = int64(*snapshot.StockDaysMin)
	}

	slotValues := make([]map[string]any, 0, len(slots))
	for _, slot := range slots {
		slotValues = append(slotValues, map[string]any{
			"day_of_week":  int64(slot.DayOfWeek),
			"start_minute": int64(slot.StartTime) / 60,
			"end_minute":   int64(slot.EndTime) / 60,
		})
	}

	return map[string]any{
		"campaign":      campaign,
		"now":           now,
		"weekday":       int64(Weekday(now)),
		"minute_of_day": int64(TimeOfDayOf(now)) / 60,
		"slots":         slotValues,
	}
}
